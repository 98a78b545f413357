package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flag"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/Cordtus/chainpulse/internal/control"
	"github.com/Cordtus/chainpulse/internal/core/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, resolved, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.Info("chainpulse starting", "chains", len(resolved), "level", slogLevel.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := control.NewWatcher(ctx, control.BuildConfig(cfg, resolved))
	if err != nil {
		slog.Error("failed to initialize watcher", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- watcher.Run(ctx) }()

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	case err := <-runErr:
		if err != nil {
			slog.Error("watcher exited with error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := watcher.Stop(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("chainpulse stopped gracefully")
}
