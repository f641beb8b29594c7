// Package main is a terminal client that follows a Vigil server's live
// telemetry, preferring the push channel and polling while it is down.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nfcunha/vigil/client/reconciler"
	"nfcunha/vigil/core/models"
	"nfcunha/vigil/utils/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file")
	baseURL := pflag.String("url", "http://localhost:8080/api", "server API base URL")
	username := pflag.String("user", "", "username (or VIGIL_MONITOR_USER)")
	pollInterval := pflag.Duration("poll", 5*time.Second, "poll interval while push is unavailable")
	reconnect := pflag.Duration("reconnect", reconciler.DefaultReconnectDelay, "delay before re-opening the push channel")
	history := pflag.Int("history", reconciler.DefaultHistoryLength, "number of points kept")
	noPush := pflag.Bool("no-push", false, "poll only")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	logger.Setup(*level, "debug")

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load env file")
		}
	}
	if *username == "" {
		*username = os.Getenv("VIGIL_MONITOR_USER")
	}
	password := os.Getenv("VIGIL_MONITOR_PASSWORD")
	if *username == "" || password == "" {
		log.Fatal().Msg("Username and VIGIL_MONITOR_PASSWORD are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := reconciler.Login(ctx, *baseURL, *username, password)
	if err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}
	log.Info().Str("url", *baseURL).Str("user", *username).Msg("Logged in")

	r := reconciler.New(
		&reconciler.WebSocketDialer{Session: session},
		&reconciler.HTTPPoller{Session: session},
		reconciler.Config{
			PushEnabled:    !*noPush,
			PollInterval:   *pollInterval,
			ReconnectDelay: *reconnect,
			HistoryLength:  *history,
		},
	)
	r.OnUpdate(func(src reconciler.Source, s models.TelemetrySnapshot) {
		log.Info().
			Str("source", src.String()).
			Time("at", s.Timestamp).
			Float64("cpu", s.CPU).
			Float64("memory", s.Memory).
			Float64("storage", s.Storage).
			Float64("rx_kbps", s.Network.RxKBps).
			Float64("tx_kbps", s.Network.TxKBps).
			Int64("uptime", s.Uptime).
			Int("points", r.Window().Len()).
			Msg("Telemetry")
	})

	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Monitor stopped")
	}
}
