package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/http_client"
)

func TestLogServerStoresEntries(t *testing.T) {
	t.Parallel()

	var file bytes.Buffer
	storage := &LogStorage{file: &file, log: zerolog.Nop()}
	srv := httptest.NewServer(storage.Handler())
	t.Cleanup(srv.Close)

	entry := http_client.LogEntry{ID: "1", Method: "POST", URL: "https://api.telegram.org/bot<redacted>/getMe", StatusCode: 200, Duration: 12}
	raw, _ := json.Marshal(entry)
	resp, err := http.Post(srv.URL+"/log", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/logs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var got []http_client.LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].URL != entry.URL {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(file.String(), "getMe") {
		t.Fatalf("file not written: %q", file.String())
	}
}

func TestLogServerRejectsBadInput(t *testing.T) {
	t.Parallel()

	storage := &LogStorage{log: zerolog.Nop()}
	h := storage.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/log", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /log: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/log", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rec.Code)
	}
}
