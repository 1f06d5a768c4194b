package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/health"
)

type ReportSource interface {
	Last() health.Report
}

// WebServer отдает последний отчет супервизора по /health.
type WebServer struct {
	health ReportSource
	addr   string
	log    zerolog.Logger
}

func NewWebServer(health ReportSource, addr string, log zerolog.Logger) *WebServer {
	return &WebServer{
		health: health,
		addr:   addr,
		log:    log.With().Str("component", "web").Logger(),
	}
}

func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealthCheck)
	mux.HandleFunc("/health/", ws.handleHealthCheck)
	return mux
}

// Start слушает addr до отмены ctx.
func (ws *WebServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ws.addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ws.log.Info().Str("addr", ws.addr).Msg("starting web server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	report := ws.health.Last()
	code := http.StatusOK
	switch report.Status {
	case health.StatusHealthy, health.StatusWarning:
	case "":
		code = http.StatusServiceUnavailable
		report.Status = health.StatusNotConfigured
	default:
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		ws.log.Debug().Err(err).Msg("health response not written")
	}
}
