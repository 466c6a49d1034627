package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"botdeck/internal/api"
	"botdeck/internal/bot"
	"botdeck/internal/config"
	"botdeck/internal/engine"
	"botdeck/internal/exchange"
	"botdeck/internal/feed"
	"botdeck/internal/store"
	"botdeck/internal/telemetry"
)

const version = "0.3.0"

// cliConfig holds the parsed CLI configuration for a daemon run.
type cliConfig struct {
	bots        string
	once        bool
	dryRun      bool
	showVersion bool
}

func parseFlags() cliConfig {
	var cfg cliConfig

	flag.StringVar(&cfg.bots, "bots", "", "path to the bot registry file (overrides config)")
	flag.BoolVar(&cfg.once, "once", false, "run a single poll cycle per bot and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "force dry-run on all bots regardless of config")
	flag.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: botdeckd [flags]\n\n")
		fmt.Fprintf(os.Stderr, "botdeckd runs the signal engines and status API without the dashboard.\n")
		fmt.Fprintf(os.Stderr, "Configuration comes from BOTDECK_CONFIG or ~/.config/botdeck/config.yaml.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

func main() {
	cli := parseFlags()
	if cli.showVersion {
		fmt.Println("botdeckd " + version)
		return
	}
	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "botdeckd: %v\n", err)
		os.Exit(1)
	}
}

func run(cli cliConfig) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(log)

	botsPath := cli.bots
	if botsPath == "" {
		botsPath = cfg.Bots.Path
	}
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

	if cli.dryRun {
		forced := slices.Clone(bots.All())
		for i := range forced {
			forced[i].DryRun = true
		}
		bots, err = bot.NewRegistry(forced)
		if err != nil {
			return err
		}
	}
	configs := bots.All()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	opts := engine.Options{
		PollBuffer:     time.Duration(cfg.Engine.PollBuffer) * time.Second,
		BatchWindow:    time.Duration(cfg.Engine.BatchWindow) * time.Second,
		UpdateInterval: time.Duration(cfg.Engine.UpdateInterval) * time.Second,
	}

	engines := make([]*engine.Engine, 0, len(configs))
	for _, bc := range configs {
		engines = append(engines, engine.New(bc, opts, feedClient, exch, st, nil, log))
	}

	if cli.once {
		for _, eng := range engines {
			if err := eng.Cycle(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewServer(bots, st, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("status api listening", "addr", cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status api stopped", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, eng := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("engine stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	wg.Wait()
	return nil
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
