package models

import (
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Call - запись одного вызова метода Bot API.
type Call struct {
	Method string
	Params url.Values
}

// StoredFile - файл, доступный через getFile и файловый endpoint.
type StoredFile struct {
	ID      string
	Path    string
	Name    string
	Content []byte
}

// Failure - ошибка, которую сервер вернет на ближайший вызов метода.
type Failure struct {
	Code        int
	Description string
	RetryAfter  int
}

func (f Failure) Response() tgbotapi.APIResponse {
	resp := tgbotapi.APIResponse{Ok: false, ErrorCode: f.Code, Description: f.Description}
	if f.RetryAfter > 0 {
		resp.Parameters = &tgbotapi.ResponseParameters{RetryAfter: f.RetryAfter}
	}
	return resp
}

// ErrorResponse собирает ответ с ошибкой.
func ErrorResponse(code int, description string) tgbotapi.APIResponse {
	return tgbotapi.APIResponse{Ok: false, ErrorCode: code, Description: description}
}
