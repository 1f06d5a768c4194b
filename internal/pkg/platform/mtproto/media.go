package mtproto

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gotd/td/tg"

	"media_relay_bot/internal/pkg/platform"
)

// FileRef - ссылка на документ или фото внутри MTProto, кладется в Media.Handle.
type FileRef struct {
	Location tg.InputFileLocationClass
	Input    tg.InputMediaClass
}

func convertMessage(m *tg.Message, chat platform.ChatRef) *platform.Message {
	out := &platform.Message{ID: m.ID, Chat: chat}
	switch media := m.Media.(type) {
	case *tg.MessageMediaDocument:
		if doc, ok := media.Document.(*tg.Document); ok {
			out.Media = documentMedia(doc)
		}
	case *tg.MessageMediaPhoto:
		if photo, ok := media.Photo.(*tg.Photo); ok {
			out.Media = photoMedia(photo)
		}
	}
	if out.Media != nil {
		out.Caption = m.Message
	} else {
		out.Text = m.Message
	}
	return out
}

func documentMedia(doc *tg.Document) *platform.Media {
	md := &platform.Media{
		Kind:     platform.MediaDocument,
		MimeType: doc.MimeType,
		Size:     doc.Size,
		Handle: FileRef{
			Location: &tg.InputDocumentFileLocation{ID: doc.ID, AccessHash: doc.AccessHash, FileReference: doc.FileReference},
			Input:    &tg.InputMediaDocument{ID: &tg.InputDocument{ID: doc.ID, AccessHash: doc.AccessHash, FileReference: doc.FileReference}},
		},
	}
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			md.FileName = a.FileName
		case *tg.DocumentAttributeVideo:
			md.Kind = platform.MediaVideo
			if a.RoundMessage {
				md.Kind = platform.MediaVideoNote
			}
			md.Duration = int(a.Duration)
			md.Width, md.Height = a.W, a.H
		case *tg.DocumentAttributeAudio:
			md.Kind = platform.MediaAudio
			if a.Voice {
				md.Kind = platform.MediaVoice
			}
			md.Duration = a.Duration
			md.Title, md.Performer = a.Title, a.Performer
		case *tg.DocumentAttributeSticker:
			md.Kind = platform.MediaSticker
		case *tg.DocumentAttributeImageSize:
			if md.Width == 0 {
				md.Width, md.Height = a.W, a.H
			}
		}
	}
	return md
}

func photoMedia(photo *tg.Photo) *platform.Media {
	md := &platform.Media{Kind: platform.MediaPhoto, MimeType: "image/jpeg"}
	thumb := ""
	for _, size := range photo.Sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			if int64(s.Size) >= md.Size {
				md.Size, md.Width, md.Height, thumb = int64(s.Size), s.W, s.H, s.Type
			}
		case *tg.PhotoSizeProgressive:
			if n := len(s.Sizes); n > 0 && int64(s.Sizes[n-1]) >= md.Size {
				md.Size, md.Width, md.Height, thumb = int64(s.Sizes[n-1]), s.W, s.H, s.Type
			}
		}
	}
	md.Handle = FileRef{
		Location: &tg.InputPhotoFileLocation{ID: photo.ID, AccessHash: photo.AccessHash, FileReference: photo.FileReference, ThumbSize: thumb},
		Input:    &tg.InputMediaPhoto{ID: &tg.InputPhoto{ID: photo.ID, AccessHash: photo.AccessHash, FileReference: photo.FileReference}},
	}
	return md
}

// uploadedMedia собирает InputMedia для загруженного файла.
func uploadedMedia(req platform.UploadRequest, file, thumb tg.InputFileClass) tg.InputMediaClass {
	if req.Kind == platform.MediaPhoto {
		return &tg.InputMediaUploadedPhoto{File: file}
	}

	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	attrs := []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: name}}
	switch req.Kind {
	case platform.MediaVideo, platform.MediaVideoNote:
		attrs = append(attrs, &tg.DocumentAttributeVideo{
			Duration:          float64(req.Duration),
			W:                 req.Width,
			H:                 req.Height,
			SupportsStreaming: true,
			RoundMessage:      req.Kind == platform.MediaVideoNote,
		})
	case platform.MediaAudio, platform.MediaVoice:
		attrs = append(attrs, &tg.DocumentAttributeAudio{
			Voice:     req.Kind == platform.MediaVoice,
			Duration:  req.Duration,
			Title:     req.Title,
			Performer: req.Performer,
		})
	}

	doc := &tg.InputMediaUploadedDocument{
		File:       file,
		MimeType:   mimeOf(name, req.Kind),
		Attributes: attrs,
	}
	if thumb != nil {
		doc.Thumb = thumb
	}
	if req.Kind == platform.MediaDocument {
		doc.ForceFile = true
	}
	return doc
}

func mimeOf(name string, kind platform.MediaKind) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	switch kind {
	case platform.MediaVideo, platform.MediaVideoNote:
		return "video/mp4"
	case platform.MediaAudio:
		return "audio/mpeg"
	case platform.MediaVoice:
		return "audio/ogg"
	}
	return "application/octet-stream"
}
