package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"botdeck/internal/api"
	"botdeck/internal/bot"
	"botdeck/internal/config"
	"botdeck/internal/engine"
	"botdeck/internal/exchange"
	"botdeck/internal/feed"
	"botdeck/internal/progress"
	"botdeck/internal/store"
	"botdeck/internal/telemetry"
	"botdeck/internal/ui"
)

const version = "0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "botdeck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	log, closeLog, err := openLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	botsPath := cfg.Bots.Path
	if botsPath == "" {
		botsPath, err = bot.DefaultPath()
		if err != nil {
			return err
		}
	}
	bots, err := bot.Load(botsPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	feedClient := feed.NewClient(cfg.Discord.Token, log)
	exch := exchange.NewClient(cfg.Exchange.Key, cfg.Exchange.Secret, log)
	if cfg.Exchange.BaseURL != "" {
		exch.BaseURL = cfg.Exchange.BaseURL
	}

	events := make(chan progress.Event, 256)
	emitter := &progress.ChanEmitter{Ch: events}

	opts := engine.Options{
		PollBuffer:     time.Duration(cfg.Engine.PollBuffer) * time.Second,
		BatchWindow:    time.Duration(cfg.Engine.BatchWindow) * time.Second,
		UpdateInterval: time.Duration(cfg.Engine.UpdateInterval) * time.Second,
	}
	for _, bc := range bots.All() {
		eng := engine.New(bc, opts, feedClient, exch, st, emitter, log)
		go func() {
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("engine stopped", "bot", bc.ID, "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewServer(bots, st, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status api stopped", "error", err)
		}
	}()
	defer func() {
		shutCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		_ = srv.Shutdown(shutCtx)
	}()

	model := ui.NewAppModel(bots, st, events).AsTeaModel()
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

func openLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	if cfg.Path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(h), func() { _ = f.Close() }, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
