// Package config parses the TOML configuration file and the sibling
// credential lookup file described in the external interfaces section of
// the specification.
package config

import "github.com/Cordtus/chainpulse/internal/core/domain"

// Config is the top-level parsed configuration.
type Config struct {
	Global   Global                 `toml:"global"`
	Chains   map[string]ChainConfig `toml:"chains"`
	Database Database               `toml:"database"`
	Metrics  Metrics                `toml:"metrics"`
	Logging  Logging                `toml:"logging"`
}

// Global holds settings applied across all chains unless overridden.
type Global struct {
	IBCVersions []string `toml:"ibc_versions"`
}

// ChainConfig holds per-chain connection settings.
type ChainConfig struct {
	URL          string `toml:"url"`
	CometVersion string `toml:"comet_version"`
	IBCVersion   string `toml:"ibc_version"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`

	// ReconnectAfterBlocks overrides the default forced-reconnect threshold
	// (100 consecutive streamed blocks). Zero selects the default.
	ReconnectAfterBlocks int `toml:"reconnect_after_blocks"`
}

// Database holds the on-disk store location.
type Database struct {
	Path string `toml:"path"`
}

// Metrics controls the Prometheus HTTP endpoint.
type Metrics struct {
	Enabled         bool `toml:"enabled"`
	Port            int  `toml:"port"`
	PopulateOnStart bool `toml:"populate_on_start"`
}

// Logging controls the ambient slog/tint setup.
type Logging struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// ResolvedChain is a ChainConfig with its comet version validated and any
// ref: URL indirection already resolved against the credential file.
type ResolvedChain struct {
	ChainID      string
	URL          string
	CometVersion domain.CometVersion
	IBCVersion   domain.IBCVersion
	Username     string
	Password     string

	ReconnectAfterBlocks int
}

const defaultReconnectAfterBlocks = 100
const defaultMetricsPort = 3000
