package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Cordtus/chainpulse/internal/core/config"
	"github.com/Cordtus/chainpulse/internal/core/domain"
)

func TestNewWatcherWithNoChains(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DatabasePath:   filepath.Join(dir, "chainpulse.db"),
		MetricsEnabled: false,
	}

	w, err := NewWatcher(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	if len(w.collectors) != 0 {
		t.Fatalf("collectors = %d, want 0", len(w.collectors))
	}
}

func TestNewWatcherRejectsUnknownCometVersion(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DatabasePath: filepath.Join(dir, "chainpulse.db"),
		Chains: []config.ResolvedChain{
			{ChainID: "osmosis-1", URL: "ws://example.invalid", CometVersion: domain.CometVersion("9.99"), IBCVersion: domain.IBCVersionV1},
		},
	}

	if _, err := NewWatcher(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown comet_version")
	}
}

func TestWatcherRunStopsOnContextCancellation(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DatabasePath:   filepath.Join(dir, "chainpulse.db"),
		MetricsEnabled: false,
	}

	w, err := NewWatcher(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
