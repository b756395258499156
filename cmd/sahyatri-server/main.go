package main

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"sahyatri/internal/config"
	"sahyatri/internal/rail"
	"sahyatri/internal/server"
	"sahyatri/pkg/intent"
	"sahyatri/pkg/stt"
)

func main() {
	cfg, err := config.Parse("sahyatri-server", os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		log.Error("Failed to parse config", "err", err)
		os.Exit(2)
	}
	cfg.SetupLogging(os.Stdout)

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routes, faqs, err := cfg.Tables()
	if err != nil {
		log.Error("Failed to load tables", "file", cfg.TablesFile, "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded tables", "routes", len(routes.Routes()), "faqs", len(faqs.Faqs()))

	httpClient, err := cfg.HTTPClient()
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	assistant, err := cfg.Assistant(ctx, httpClient)
	if err != nil {
		log.Error("Failed to create answer provider", "provider", cfg.Provider, "err", err)
		os.Exit(1)
	}

	deps := server.Deps{
		Matcher:      intent.NewMatcher(routes, faqs),
		Assistant:    assistant,
		Rail:         rail.NewClient(cfg.Rail, httpClient),
		Session:      cfg.SessionConfig(),
		Speech:       cfg.SpeechConfig(),
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.WhisperModel != "" {
		whisper, err := stt.NewTranscriber(cfg.WhisperModel)
		if err != nil {
			log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
			os.Exit(1)
		}
		defer whisper.Close()
		deps.Transcriber = whisper

		log.Debug("Loaded whisper")
	}

	srv := server.New(deps)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to serve", "addr", cfg.Listen, "err", err)
			stop()
		}
	}()

	log.Info("Boot up - successful", "addr", cfg.Listen)

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down http server", "err", err)
	}
	// hijacked websockets are not covered by Shutdown
	srv.Close()
}
