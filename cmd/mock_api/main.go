package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"media_relay_bot/internal/pkg/logging"
	"media_relay_bot/internal/pkg/mock-api/handlers"
)

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
		Use:          "mock_api",
		Short:        "Fake Telegram Bot API for local runs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			bots, _ := cmd.Flags().GetStringSlice("bot")
			channel, _ := cmd.Flags().GetString("channel")
			count, _ := cmd.Flags().GetInt("messages")

			log := logging.New("info", "console", os.Stderr)
			srv := handlers.NewServer()
			if err := seed(srv, bots, channel, count); err != nil {
				return err
			}
			return serve(cmd.Context(), listen, srv, log)
		},
	}
	cmd.Flags().String("listen", ":8082", "Listen address.")
	cmd.Flags().StringSlice("bot", []string{"100:local-bot=relay_local_bot"}, "Known bot as token=username, repeatable.")
	cmd.Flags().String("channel", "@demo_channel", "Channel to fill with text messages.")
	cmd.Flags().Int("messages", 20, "How many messages to seed into the channel.")
	return cmd
}

func seed(srv *handlers.Server, bots []string, channel string, count int) error {
	for i, entry := range bots {
		token, username, ok := strings.Cut(entry, "=")
		if !ok || token == "" || username == "" {
			return fmt.Errorf("bad --bot %q, want token=username", entry)
		}
		srv.AddBot(token, tgbotapi.User{ID: int64(9000 + i), FirstName: username, UserName: username})
	}
	for id := 1; id <= count; id++ {
		srv.Seed(channel, tgbotapi.Message{MessageID: id, Text: fmt.Sprintf("message #%d", id)})
	}
	return nil
}

func serve(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("mock Bot API listening on /bot<token>/<method> and /file/bot<token>/<path>")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
