// Package control wires together every component a running ChainPulse
// process needs: the storage handle, one chain.Collector per configured
// chain, the packet lifecycle engine, the metrics aggregator, and the read
// API server, and supervises their goroutines.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Cordtus/chainpulse/internal/api"
	"github.com/Cordtus/chainpulse/internal/core/config"
	"github.com/Cordtus/chainpulse/internal/indexing/lifecycle"
	"github.com/Cordtus/chainpulse/internal/indexing/metrics"
	"github.com/Cordtus/chainpulse/internal/infra/chain"
	"github.com/Cordtus/chainpulse/internal/infra/storage/sqlite"
)

// Watcher is the assembled application: one lifecycle engine and metrics
// aggregator shared across every chain's collector, plus the read API.
type Watcher struct {
	cfg Config

	db         *sqlite.DB
	store      *sqlite.Store
	engine     *lifecycle.Engine
	metrics    *metrics.Metrics
	collectors map[string]*chain.Collector
	apiServer  *api.Server

	log *slog.Logger
}

// collectorSink adapts the shared lifecycle engine and metrics aggregator
// to the per-collector chain.Sink interface. Every call carries the chain ID
// the collector passes in.
type collectorSink struct {
	chainID string
	engine  *lifecycle.Engine
	metrics *metrics.Metrics
}

func (s collectorSink) HandleBlock(ctx context.Context, block chain.NormalizedBlock) error {
	return s.engine.ProcessBlock(ctx, block)
}
func (s collectorSink) IncReconnects(chainID string) { s.metrics.IncReconnects(chainID) }
func (s collectorSink) IncTimeouts(chainID string)   { s.metrics.IncTimeouts(chainID) }
func (s collectorSink) IncErrors(chainID string)     { s.metrics.IncErrors(chainID) }
func (s collectorSink) IncTxs(chainID string)        { s.metrics.IncTxs(chainID) }

// NewWatcher assembles a Watcher from resolved configuration. It opens the
// database and validates every chain's comet version eagerly, so a
// misconfiguration fails at startup rather than mid-run.
func NewWatcher(ctx context.Context, cfg Config) (*Watcher, error) {
	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("control: open database: %w", err)
	}

	store := sqlite.NewStore(db)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(prometheus.DefaultRegisterer, store)
	} else {
		m = metrics.New(prometheus.NewRegistry(), nil)
	}

	engine := lifecycle.New(store, m)

	collectors := make(map[string]*chain.Collector, len(cfg.Chains))
	for _, rc := range cfg.Chains {
		sink := collectorSink{chainID: rc.ChainID, engine: engine, metrics: m}
		c, err := chain.New(chain.Config{
			ChainID:              rc.ChainID,
			URL:                  rc.URL,
			Username:             rc.Username,
			Password:             rc.Password,
			CometVersion:         string(rc.CometVersion),
			ReconnectAfterBlocks: rc.ReconnectAfterBlocks,
		}, sink)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("control: chain %q: %w", rc.ChainID, err)
		}
		collectors[rc.ChainID] = c
	}
	m.SetChainCount(len(collectors))

	var apiServer *api.Server
	if cfg.MetricsEnabled {
		apiServer = api.New(fmt.Sprintf(":%d", cfg.MetricsPort), store)
	}

	return &Watcher{
		cfg:        cfg,
		db:         db,
		store:      store,
		engine:     engine,
		metrics:    m,
		collectors: collectors,
		apiServer:  apiServer,
		log:        slog.Default(),
	}, nil
}

// Run runs the populate_on_start replay (if enabled), then launches every
// collector goroutine under one errgroup, the metrics refresh loop, and (if
// enabled) the read API server. It blocks until every one of those
// goroutines has returned: after ctx is canceled, or once the API server
// fails.
func (w *Watcher) Run(ctx context.Context) error {
	if w.cfg.PopulateOnStart {
		if err := w.metrics.Populate(ctx); err != nil {
			w.log.Warn("populate_on_start failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	for chainID, c := range w.collectors {
		chainID, c := chainID, c
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error("collector panicked", "chain", chainID, "panic", r)
					panic(r)
				}
			}()
			w.log.Info("starting collector", "chain", chainID)
			c.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		w.metrics.Refresh(gctx)
		return nil
	})

	if w.apiServer != nil {
		g.Go(func() error {
			w.log.Info("starting read API", "port", w.cfg.MetricsPort)
			if err := w.apiServer.Start(); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Stop shuts the read API server down and closes the lifecycle engine's
// write funnel and the database, draining in-flight work first.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("stopping watcher")

	if w.apiServer != nil {
		if err := w.apiServer.Stop(ctx); err != nil {
			w.log.Warn("api server shutdown", "error", err)
		}
	}

	w.engine.Close()

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("control: close database: %w", err)
	}
	return nil
}

// chainConfigFor is a small lookup helper used by NewWatcher's caller (the
// CLI entrypoint) to build Config.Chains from config.Load's resolved list
// plus the parsed top-level Config's database/metrics settings.
func chainConfigFor(cfg *config.Config, resolved []config.ResolvedChain) Config {
	return Config{
		DatabasePath:    cfg.Database.Path,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPort:     cfg.Metrics.Port,
		PopulateOnStart: cfg.Metrics.PopulateOnStart,
		Chains:          resolved,
	}
}

// BuildConfig exposes chainConfigFor to callers outside the package.
func BuildConfig(cfg *config.Config, resolved []config.ResolvedChain) Config {
	return chainConfigFor(cfg, resolved)
}
