// Package config loads application settings from a yaml file and the
// environment. Env vars use the BOTDECK_ prefix and override file values,
// which is also how secrets (tokens, API keys) should be supplied.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Discord   DiscordConfig
	Exchange  ExchangeConfig
	Engine    EngineConfig
	Store     StoreConfig
	Bots      BotsConfig
	API       APIConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// DiscordConfig holds feed credentials.
type DiscordConfig struct {
	Token string
}

// ExchangeConfig holds Bybit credentials. Empty credentials force dry runs.
type ExchangeConfig struct {
	Key     string
	Secret  string
	BaseURL string `mapstructure:"base_url"`
}

// EngineConfig holds polling cadence, in seconds.
type EngineConfig struct {
	PollBuffer     int `mapstructure:"poll_buffer"`
	BatchWindow    int `mapstructure:"batch_window"`
	UpdateInterval int `mapstructure:"update_interval"`
}

// StoreConfig holds the sqlite path.
type StoreConfig struct {
	Path string
}

// BotsConfig points at the bot registry file.
type BotsConfig struct {
	Path string
}

// APIConfig holds the status API listen address.
type APIConfig struct {
	Addr string
}

// TelemetryConfig holds OTLP trace export settings.
type TelemetryConfig struct {
	Enabled  bool
	Endpoint string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	Path  string
}

// Load reads configuration from file and env. The file location is
// BOTDECK_CONFIG or ~/.config/botdeck/config.yaml; a missing file is fine.
func Load() (Config, error) {
	v := viper.New()

	home := os.Getenv("HOME")
	v.SetDefault("discord.token", "")
	v.SetDefault("exchange.key", "")
	v.SetDefault("exchange.secret", "")
	v.SetDefault("exchange.base_url", "")
	v.SetDefault("engine.poll_buffer", 5)
	v.SetDefault("engine.batch_window", 25)
	v.SetDefault("engine.update_interval", 300)
	v.SetDefault("store.path", filepath.Join(home, ".botdeck", "botdeck.db"))
	v.SetDefault("bots.path", "")
	v.SetDefault("api.addr", "127.0.0.1:8787")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")

	v.SetConfigType("yaml")

	cfgPath := os.Getenv("BOTDECK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "botdeck"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BOTDECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
