// Package bot defines bot configurations and the ordered registry that
// loads them. A Config describes one signal-following bot instance; the
// dashboard renders one tab per Config and the runner executes exactly one.
package bot

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// RegistryPathEnv overrides the default bots.yaml location (for testing).
	RegistryPathEnv = "BOTDECK_BOTS_FILE"
	// DefaultRegistryBase is the default registry path under the user config dir.
	DefaultRegistryBase = "botdeck/bots.yaml"
)

// SignalFormat selects which wire format a bot's channel uses.
type SignalFormat string

const (
	FormatEmbed  SignalFormat = "embed"  // original embed-style signals
	FormatPlain  SignalFormat = "plain"  // plain-text signals with TP ladder
	FormatCrypto SignalFormat = "crypto" // emoji header signals with timeframe line
)

// Config describes one bot instance. Configs are immutable once loaded;
// consumers only read them.
type Config struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Format      SignalFormat `yaml:"format"`

	ChannelID  string   `yaml:"channel_id"`
	Quote      string   `yaml:"quote"`
	Timeframes []string `yaml:"timeframes"`

	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
	MaxConcurrent   int     `yaml:"max_concurrent"`
	MaxPerDay       int     `yaml:"max_per_day"`
	DryRun          bool    `yaml:"dry_run"`
}

// Registry is an ordered collection of bot configs. Iteration order is the
// declaration order of the source file.
type Registry struct {
	configs []Config
	byID    map[string]int
}

// NewRegistry builds a registry from configs, preserving order.
// Empty or duplicate IDs are errors.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(configs))}
	for _, c := range configs {
		if c.ID == "" {
			return nil, fmt.Errorf("bot config %q: empty id", c.Name)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("bot config %q: duplicate id", c.ID)
		}
		r.byID[c.ID] = len(r.configs)
		r.configs = append(r.configs, c)
	}
	return r, nil
}

// All returns the configs in declaration order. The returned slice is shared;
// callers must not modify it.
func (r *Registry) All() []Config {
	return r.configs
}

// Get returns the config for id.
func (r *Registry) Get(id string) (Config, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Config{}, false
	}
	return r.configs[i], true
}

// Len returns the number of configs.
func (r *Registry) Len() int {
	return len(r.configs)
}

// registryFile is the top-level YAML structure of bots.yaml.
type registryFile struct {
	Bots []Config `yaml:"bots"`
}

// DefaultPath returns the registry file path: BOTDECK_BOTS_FILE if set,
// otherwise <user config dir>/botdeck/bots.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(RegistryPathEnv); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, DefaultRegistryBase), nil
}

// Load reads a registry from a YAML file. Declaration order is preserved.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bots file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse bots file: %w", err)
	}
	for i := range f.Bots {
		applyDefaults(&f.Bots[i])
	}
	return NewRegistry(f.Bots)
}

// applyDefaults fills zero-valued optional fields.
func applyDefaults(c *Config) {
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Format == "" {
		c.Format = FormatCrypto
	}
	if c.Quote == "" {
		c.Quote = "USDT"
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = []string{"H1", "M15", "H4"}
	}
	if c.RiskPerTradePct == 0 {
		c.RiskPerTradePct = 2.0
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 3
	}
	if c.MaxPerDay == 0 {
		c.MaxPerDay = 20
	}
}
