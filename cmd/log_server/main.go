package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"media_relay_bot/internal/pkg/http_client"
	"media_relay_bot/internal/pkg/logging"
)

const keepEntries = 1000

// LogStorage принимает записи LoggedClient: последние keepEntries в памяти,
// все - в файл за текущий день.
type LogStorage struct {
	mu   sync.Mutex
	logs []http_client.LogEntry
	file io.Writer
	log  zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "log_server",
		Short:        "Collects Bot API request logs posted by the relay bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			dir, _ := cmd.Flags().GetString("dir")

			log := logging.New("info", "console", os.Stderr)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			logFile, err := os.OpenFile(
				filepath.Join(dir, fmt.Sprintf("http_%s.log", time.Now().Format("2006-01-02"))),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY,
				0o644,
			)
			if err != nil {
				return err
			}
			defer logFile.Close()

			storage := &LogStorage{file: logFile, log: log}
			return serve(cmd.Context(), listen, storage.Handler(), log)
		},
	}
	cmd.Flags().String("listen", ":8081", "Listen address.")
	cmd.Flags().String("dir", "/logs", "Directory for daily log files.")
	return cmd
}

func (s *LogStorage) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/log", s.handleLog)
	mux.HandleFunc("/logs", s.handleGetLogs)
	mux.HandleFunc("/health", handleHealth)
	return mux
}

func (s *LogStorage) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var entry http_client.LogEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > keepEntries {
		s.logs = s.logs[len(s.logs)-keepEntries:]
	}
	if s.file != nil {
		_, _ = s.file.Write(append(body, '\n'))
	}
	s.mu.Unlock()

	ev := s.log.Info()
	if entry.Error != "" {
		ev = s.log.Warn().Str("error", entry.Error)
	}
	ev.Str("method", entry.Method).
		Str("url", entry.URL).
		Int("status", entry.StatusCode).
		Int64("duration_ms", entry.Duration).
		Msg("bot api call")

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *LogStorage) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]http_client.LogEntry, len(s.logs))
	copy(out, s.logs)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func serve(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("log server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
