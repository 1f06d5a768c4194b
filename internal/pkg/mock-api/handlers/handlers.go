package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_relay_bot/internal/pkg/mock-api/models"
)

const maxUpload = 64 << 20

// Server - поддельный Bot API для локальных запусков и тестов. Понимает
// адреса /bot<token>/<method> и /file/bot<token>/<path>.
type Server struct {
	mu       sync.Mutex
	bots     map[string]tgbotapi.User
	chats    map[string]map[int]tgbotapi.Message
	files    map[string]models.StoredFile
	failures map[string][]models.Failure
	updates  []tgbotapi.Update
	calls    []models.Call
	nextID   int
	nextFile int
}

func NewServer() *Server {
	return &Server{
		bots:     map[string]tgbotapi.User{},
		chats:    map[string]map[int]tgbotapi.Message{},
		files:    map[string]models.StoredFile{},
		failures: map[string][]models.Failure{},
		nextID:   1000,
	}
}

// AddBot регистрирует токен; запросы с другими токенами получают 401.
func (s *Server) AddBot(token string, user tgbotapi.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.IsBot = true
	s.bots[token] = user
}

// Seed кладет сообщение в чат. chat - число или @username.
func (s *Server) Seed(chat string, msg tgbotapi.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Chat == nil {
		msg.Chat = chatOf(chat)
	}
	if msg.Date == 0 {
		msg.Date = int(time.Now().Unix())
	}
	s.chatLocked(chat)[msg.MessageID] = msg
}

// AddFile сохраняет содержимое и возвращает file_id.
func (s *Server) AddFile(name string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFileLocked(name, content)
}

func (s *Server) File(id string) (models.StoredFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f, ok
}

// FailNext ставит ошибку на следующий вызов метода.
func (s *Server) FailNext(method string, f models.Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], f)
}

func (s *Server) PushUpdate(u tgbotapi.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.UpdateID == 0 {
		u.UpdateID = len(s.updates) + 1
	}
	s.updates = append(s.updates, u)
}

func (s *Server) Calls() []models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Call(nil), s.calls...)
}

// Methods - имена вызванных методов по порядку.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Method)
	}
	return out
}

// Messages возвращает сообщения чата, упорядоченные по id.
func (s *Server) Messages(chat string) []tgbotapi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[chat]
	ids := make([]int, 0, len(msgs))
	for id := range msgs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]tgbotapi.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, msgs[id])
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if strings.HasPrefix(path, "file/bot") {
		s.serveFile(w, r, strings.TrimPrefix(path, "file/bot"))
		return
	}
	if path == "health" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	if !strings.HasPrefix(path, "bot") {
		http.NotFound(w, r)
		return
	}
	token, method, ok := strings.Cut(strings.TrimPrefix(path, "bot"), "/")
	if !ok || method == "" {
		http.NotFound(w, r)
		return
	}

	params, files, err := readParams(r)
	if err != nil {
		sendJSON(w, models.ErrorResponse(http.StatusBadRequest, "Bad Request: "+err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, models.Call{Method: method, Params: params})

	bot, known := s.bots[token]
	if !known {
		sendJSON(w, models.ErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	if queue := s.failures[method]; len(queue) > 0 {
		s.failures[method] = queue[1:]
		sendJSON(w, queue[0].Response())
		return
	}

	result, apiErr := s.dispatch(bot, method, params, files)
	if apiErr != nil {
		sendJSON(w, *apiErr)
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		sendJSON(w, models.ErrorResponse(http.StatusInternalServerError, err.Error()))
		return
	}
	sendJSON(w, tgbotapi.APIResponse{Ok: true, Result: raw})
}

func (s *Server) dispatch(bot tgbotapi.User, method string, p url.Values, files map[string]upload) (any, *tgbotapi.APIResponse) {
	switch method {
	case "getMe":
		return bot, nil
	case "getUpdates":
		offset, _ := strconv.Atoi(p.Get("offset"))
		var out []tgbotapi.Update
		for _, u := range s.updates {
			if u.UpdateID >= offset {
				out = append(out, u)
			}
		}
		if out == nil {
			out = []tgbotapi.Update{}
		}
		return out, nil
	case "sendMessage":
		msg := s.newMessageLocked(p.Get("chat_id"), &bot)
		msg.Text = p.Get("text")
		msg.ReplyToMessage = s.replyLocked(p)
		s.chatLocked(p.Get("chat_id"))[msg.MessageID] = msg
		return msg, nil
	case "editMessageText":
		chat := s.chatLocked(p.Get("chat_id"))
		id, _ := strconv.Atoi(p.Get("message_id"))
		msg, ok := chat[id]
		if !ok {
			return nil, badRequest("message to edit not found")
		}
		msg.Text = p.Get("text")
		chat[id] = msg
		return msg, nil
	case "deleteMessage":
		chat := s.chatLocked(p.Get("chat_id"))
		id, _ := strconv.Atoi(p.Get("message_id"))
		if _, ok := chat[id]; !ok {
			return nil, badRequest("message to delete not found")
		}
		delete(chat, id)
		return true, nil
	case "forwardMessage", "copyMessage":
		src, apiErr := s.sourceLocked(p, method)
		if apiErr != nil {
			return nil, apiErr
		}
		msg := src
		msg.MessageID = s.nextIDLocked()
		msg.Chat = chatOf(p.Get("chat_id"))
		msg.ReplyToMessage = s.replyLocked(p)
		if method == "forwardMessage" {
			msg.ForwardFromChat = src.Chat
			msg.ForwardFromMessageID = src.MessageID
		} else if c := p.Get("caption"); c != "" {
			msg.Caption = c
		}
		s.chatLocked(p.Get("chat_id"))[msg.MessageID] = msg
		if method == "copyMessage" {
			return tgbotapi.MessageID{MessageID: msg.MessageID}, nil
		}
		return msg, nil
	case "sendPhoto", "sendVideo", "sendAudio", "sendDocument", "sendVoice", "sendVideoNote", "sendSticker":
		return s.sendMediaLocked(bot, method, p, files)
	case "getFile":
		f, ok := s.files[p.Get("file_id")]
		if !ok {
			return nil, badRequest("invalid file_id")
		}
		return tgbotapi.File{FileID: f.ID, FileUniqueID: f.ID, FileSize: len(f.Content), FilePath: f.Path}, nil
	case "getChat":
		return chatOf(p.Get("chat_id")), nil
	}
	return nil, &tgbotapi.APIResponse{ErrorCode: http.StatusNotFound, Description: "Not Found: method " + method}
}

func (s *Server) sourceLocked(p url.Values, method string) (tgbotapi.Message, *tgbotapi.APIResponse) {
	from := p.Get("from_chat_id")
	msgs, ok := s.chats[from]
	if !ok && strings.HasPrefix(from, "@") {
		return tgbotapi.Message{}, badRequest("chat not found")
	}
	id, _ := strconv.Atoi(p.Get("message_id"))
	src, ok := msgs[id]
	if !ok {
		if method == "copyMessage" {
			return tgbotapi.Message{}, badRequest("message to copy not found")
		}
		return tgbotapi.Message{}, badRequest("message to forward not found")
	}
	return src, nil
}

func (s *Server) sendMediaLocked(bot tgbotapi.User, method string, p url.Values, files map[string]upload) (any, *tgbotapi.APIResponse) {
	field := mediaField(method)
	fileID := p.Get(field)
	size := 0
	name := ""
	if up, ok := files[field]; ok {
		fileID = s.addFileLocked(up.name, up.content)
		size = len(up.content)
		name = up.name
	} else if f, ok := s.files[fileID]; ok {
		size = len(f.Content)
		name = f.Name
	} else {
		return nil, badRequest("wrong file identifier/HTTP URL specified")
	}

	msg := s.newMessageLocked(p.Get("chat_id"), &bot)
	msg.Caption = p.Get("caption")
	msg.ReplyToMessage = s.replyLocked(p)
	duration, _ := strconv.Atoi(p.Get("duration"))
	switch field {
	case "photo":
		msg.Photo = []tgbotapi.PhotoSize{{FileID: fileID, FileUniqueID: fileID, FileSize: size, Width: 90, Height: 90}}
	case "video":
		msg.Video = &tgbotapi.Video{FileID: fileID, FileUniqueID: fileID, FileName: name, FileSize: size, Duration: duration}
	case "audio":
		msg.Audio = &tgbotapi.Audio{FileID: fileID, FileUniqueID: fileID, FileName: name, FileSize: size, Duration: duration, Performer: p.Get("performer"), Title: p.Get("title")}
	case "voice":
		msg.Voice = &tgbotapi.Voice{FileID: fileID, FileUniqueID: fileID, FileSize: size, Duration: duration}
	case "video_note":
		msg.VideoNote = &tgbotapi.VideoNote{FileID: fileID, FileUniqueID: fileID, FileSize: size, Duration: duration}
	case "sticker":
		msg.Sticker = &tgbotapi.Sticker{FileID: fileID, FileUniqueID: fileID, FileSize: size}
	default:
		msg.Document = &tgbotapi.Document{FileID: fileID, FileUniqueID: fileID, FileName: name, FileSize: size}
	}
	s.chatLocked(p.Get("chat_id"))[msg.MessageID] = msg
	return msg, nil
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, rest string) {
	token, path, ok := strings.Cut(rest, "/")
	s.mu.Lock()
	_, known := s.bots[token]
	var found *models.StoredFile
	for _, f := range s.files {
		if f.Path == path {
			found = &f
			break
		}
	}
	s.mu.Unlock()
	if !ok || !known || found == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(found.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(found.Content)
}

func (s *Server) newMessageLocked(chat string, from *tgbotapi.User) tgbotapi.Message {
	return tgbotapi.Message{
		MessageID: s.nextIDLocked(),
		From:      from,
		Date:      int(time.Now().Unix()),
		Chat:      chatOf(chat),
	}
}

func (s *Server) replyLocked(p url.Values) *tgbotapi.Message {
	id, _ := strconv.Atoi(p.Get("reply_to_message_id"))
	if id == 0 {
		return nil
	}
	return &tgbotapi.Message{MessageID: id, Chat: chatOf(p.Get("chat_id"))}
}

func (s *Server) chatLocked(chat string) map[int]tgbotapi.Message {
	msgs, ok := s.chats[chat]
	if !ok {
		msgs = map[int]tgbotapi.Message{}
		s.chats[chat] = msgs
	}
	return msgs
}

func (s *Server) addFileLocked(name string, content []byte) string {
	s.nextFile++
	id := fmt.Sprintf("file_%d", s.nextFile)
	if name == "" {
		name = id
	}
	s.files[id] = models.StoredFile{ID: id, Path: "documents/" + id + "_" + name, Name: name, Content: content}
	return id
}

func (s *Server) nextIDLocked() int {
	s.nextID++
	return s.nextID
}

type upload struct {
	name    string
	content []byte
}

func readParams(r *http.Request) (url.Values, map[string]upload, error) {
	files := map[string]upload{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			return nil, nil, err
		}
		for field, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			f, err := headers[0].Open()
			if err != nil {
				return nil, nil, err
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, nil, err
			}
			files[field] = upload{name: headers[0].Filename, content: data}
		}
		return url.Values(r.MultipartForm.Value), files, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, nil, err
	}
	return r.Form, files, nil
}

func mediaField(method string) string {
	switch method {
	case "sendPhoto":
		return "photo"
	case "sendVideo":
		return "video"
	case "sendAudio":
		return "audio"
	case "sendVoice":
		return "voice"
	case "sendVideoNote":
		return "video_note"
	case "sendSticker":
		return "sticker"
	default:
		return "document"
	}
}

func chatOf(chat string) *tgbotapi.Chat {
	if strings.HasPrefix(chat, "@") {
		return &tgbotapi.Chat{ID: -1000000000000 - int64(len(chat)), Type: "channel", UserName: strings.TrimPrefix(chat, "@")}
	}
	id, _ := strconv.ParseInt(chat, 10, 64)
	kind := "private"
	if id < 0 {
		kind = "supergroup"
	}
	return &tgbotapi.Chat{ID: id, Type: kind}
}

func badRequest(description string) *tgbotapi.APIResponse {
	resp := models.ErrorResponse(http.StatusBadRequest, "Bad Request: "+description)
	return &resp
}

func sendJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(data)
}
