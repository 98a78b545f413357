package control

import (
	"github.com/Cordtus/chainpulse/internal/core/config"
)

// Config is the orchestrator's own settings, built from the parsed
// config.Config plus the resolved per-chain list produced by config.Load.
type Config struct {
	DatabasePath    string
	MetricsEnabled  bool
	MetricsPort     int
	PopulateOnStart bool
	Chains          []config.ResolvedChain
}
