package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Cordtus/chainpulse/internal/core/domain"
)

// Load reads the TOML configuration file at path, resolves any ref:<name>
// chain URLs against a sibling chains.json credential file, and validates
// every configured comet_version. Any failure here is a configuration
// error: fatal at startup per the error handling design.
func Load(path string) (*Config, []ResolvedChain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config file: %w", err)
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = defaultMetricsPort
	}
	if len(cfg.Global.IBCVersions) == 0 {
		cfg.Global.IBCVersions = []string{string(domain.IBCVersionV1)}
	}

	needsCreds := false
	for _, c := range cfg.Chains {
		if strings.HasPrefix(c.URL, "ref:") {
			needsCreds = true
			break
		}
	}

	var creds Credentials
	if needsCreds || credentialFileExists(path) {
		creds, err = loadCredentials(credentialPath(path))
		if err != nil {
			return nil, nil, err
		}
	}

	resolved := make([]ResolvedChain, 0, len(cfg.Chains))
	for chainID, c := range cfg.Chains {
		rc, err := resolveChain(chainID, c, creds)
		if err != nil {
			return nil, nil, err
		}
		resolved = append(resolved, rc)
	}

	return &cfg, resolved, nil
}

func resolveChain(chainID string, c ChainConfig, creds Credentials) (ResolvedChain, error) {
	url := c.URL
	username := c.Username
	password := c.Password

	if strings.HasPrefix(url, "ref:") {
		name := strings.TrimPrefix(url, "ref:")
		entry, ok := creds[name]
		if !ok {
			return ResolvedChain{}, fmt.Errorf("chain %q: no credential entry %q in chains.json", chainID, name)
		}
		url = entry.URL
		if username == "" {
			username = entry.Username
		}
		if password == "" {
			password = entry.Password
		}
	}

	cometVersionStr := c.CometVersion
	if cometVersionStr == "" {
		cometVersionStr = string(domain.CometV034)
	}
	cometVersion, ok := domain.ParseCometVersion(cometVersionStr)
	if !ok {
		return ResolvedChain{}, fmt.Errorf("chain %q: unknown comet_version %q", chainID, cometVersionStr)
	}

	ibcVersion := domain.IBCVersion(c.IBCVersion)
	if ibcVersion == "" {
		ibcVersion = domain.IBCVersionV1
	}
	if ibcVersion != domain.IBCVersionV1 {
		return ResolvedChain{}, fmt.Errorf("chain %q: unsupported ibc_version %q", chainID, ibcVersion)
	}

	reconnect := c.ReconnectAfterBlocks
	if reconnect == 0 {
		reconnect = defaultReconnectAfterBlocks
	}

	return ResolvedChain{
		ChainID:              chainID,
		URL:                  url,
		CometVersion:         cometVersion,
		IBCVersion:           ibcVersion,
		Username:             username,
		Password:             password,
		ReconnectAfterBlocks: reconnect,
	}, nil
}

func credentialPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "chains.json")
}

func credentialFileExists(configPath string) bool {
	_, err := os.Stat(credentialPath(configPath))
	return err == nil
}
