package botapi

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_relay_bot/internal/pkg/platform"
)

var jsonUnmarshal = json.Unmarshal

// convertMessage переносит текст, подпись и вложение в platform.Message.
func convertMessage(m *tgbotapi.Message) *platform.Message {
	out := &platform.Message{ID: m.MessageID, Text: m.Text, Caption: m.Caption}
	if m.Chat != nil {
		out.Chat = platform.ChatRef{ID: m.Chat.ID, Username: m.Chat.UserName}
	}

	switch {
	case m.Video != nil:
		out.Media = &platform.Media{Kind: platform.MediaVideo, FileName: m.Video.FileName, MimeType: m.Video.MimeType, Size: int64(m.Video.FileSize), Duration: m.Video.Duration, Width: m.Video.Width, Height: m.Video.Height, Handle: FileRef{m.Video.FileID}}
	case m.Audio != nil:
		out.Media = &platform.Media{Kind: platform.MediaAudio, FileName: m.Audio.FileName, MimeType: m.Audio.MimeType, Size: int64(m.Audio.FileSize), Duration: m.Audio.Duration, Performer: m.Audio.Performer, Title: m.Audio.Title, Handle: FileRef{m.Audio.FileID}}
	case m.Document != nil:
		out.Media = &platform.Media{Kind: platform.MediaDocument, FileName: m.Document.FileName, MimeType: m.Document.MimeType, Size: int64(m.Document.FileSize), Handle: FileRef{m.Document.FileID}}
	case len(m.Photo) > 0:
		p := m.Photo[len(m.Photo)-1]
		out.Media = &platform.Media{Kind: platform.MediaPhoto, Size: int64(p.FileSize), Width: p.Width, Height: p.Height, Handle: FileRef{p.FileID}}
	case m.Voice != nil:
		out.Media = &platform.Media{Kind: platform.MediaVoice, MimeType: m.Voice.MimeType, Size: int64(m.Voice.FileSize), Duration: m.Voice.Duration, Handle: FileRef{m.Voice.FileID}}
	case m.VideoNote != nil:
		out.Media = &platform.Media{Kind: platform.MediaVideoNote, Size: int64(m.VideoNote.FileSize), Duration: m.VideoNote.Duration, Width: m.VideoNote.Length, Height: m.VideoNote.Length, Handle: FileRef{m.VideoNote.FileID}}
	case m.Sticker != nil:
		out.Media = &platform.Media{Kind: platform.MediaSticker, Size: int64(m.Sticker.FileSize), Width: m.Sticker.Width, Height: m.Sticker.Height, Handle: FileRef{m.Sticker.FileID}}
	}
	return out
}
