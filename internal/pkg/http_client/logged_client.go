package http_client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxLoggedBody = 1000

var tokenPattern = regexp.MustCompile(`bot\d+:[A-Za-z0-9_-]+`)

// LoggedClient оборачивает http.Client и пишет каждый запрос к Bot API
// в лог. Токен бота в URL заменяется на bot<redacted>.
type LoggedClient struct {
	*http.Client
	log     zerolog.Logger
	sinkURL string
	verbose bool
}

type LogEntry struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Method       string `json:"method"`
	URL          string `json:"url"`
	RequestBody  string `json:"request_body,omitempty"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body,omitempty"`
	Duration     int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// NewLoggedClient: verbose включает логирование тел запросов и ответов,
// sinkURL - адрес сборщика логов (cmd/log_server), может быть пустым.
func NewLoggedClient(timeout time.Duration, log zerolog.Logger, verbose bool, sinkURL string) *LoggedClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LoggedClient{
		Client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "http").Logger(),
		sinkURL: strings.TrimRight(sinkURL, "/"),
		verbose: verbose,
	}
}

func (c *LoggedClient) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()

	// multipart-загрузки идут через pipe, их тело не читаем
	var requestBody []byte
	if c.verbose && req.Body != nil && isForm(req.Header.Get("Content-Type")) {
		requestBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	resp, err := c.Client.Do(req)

	entry := LogEntry{
		ID:          start.Format("20060102150405.000000000"),
		Timestamp:   start.Format(time.RFC3339),
		Method:      req.Method,
		URL:         Redact(req.URL.String()),
		RequestBody: truncate(Redact(string(requestBody))),
		Duration:    time.Since(start).Milliseconds(),
	}

	if err != nil {
		entry.Error = Redact(err.Error())
		c.emit(entry)
		return nil, err
	}

	entry.StatusCode = resp.StatusCode
	if c.verbose && isJSON(resp.Header.Get("Content-Type")) {
		responseBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
		entry.ResponseBody = truncate(string(responseBody))
	}

	c.emit(entry)
	return resp, nil
}

func (c *LoggedClient) emit(entry LogEntry) {
	ev := c.log.Debug()
	if entry.Error != "" || entry.StatusCode >= 500 {
		ev = c.log.Warn()
	}
	ev.Str("method", entry.Method).
		Str("url", entry.URL).
		Int("status", entry.StatusCode).
		Int64("duration_ms", entry.Duration).
		Str("error", entry.Error).
		Str("request", entry.RequestBody).
		Str("response", entry.ResponseBody).
		Msg("bot api request")

	if c.sinkURL != "" {
		go c.send(entry)
	}
}

func (c *LoggedClient) send(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sinkURL+"/log", bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	// без логирования, иначе каждая запись породит новую
	resp, err := c.Client.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("log sink unreachable")
		return
	}
	_ = resp.Body.Close()
}

// Redact убирает токены ботов из строки.
func Redact(s string) string {
	return tokenPattern.ReplaceAllString(s, "bot<redacted>")
}

func isForm(contentType string) bool {
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded")
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "... [truncated]"
}
