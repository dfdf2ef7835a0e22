package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds application settings. Provider credentials are deliberately
// absent from the YAML file and come from the environment only.
type Config struct {
	Port int `yaml:"port"`

	// Base URLs for the two data providers; overridable for testing
	// against local fixtures.
	MarketDataURL string `yaml:"market_data_url"`
	TreasuryURL   string `yaml:"treasury_url"`

	// FactorDir is the directory holding the Fama-French reference CSVs
	// (daily and weekly cadence), loaded once at startup.
	FactorDir string `yaml:"factor_dir"`

	// BarCacheTTLHours controls how long cached daily closes stay fresh.
	BarCacheTTLHours int `yaml:"bar_cache_ttl_hours"`
	// RateCacheTTLMinutes controls how long a treasury yield is reused.
	RateCacheTTLMinutes int `yaml:"rate_cache_ttl_minutes"`
	// RequestsPerSecond caps outbound calls per provider.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Credentials (environment only).
	AlpacaKey    string `yaml:"-"`
	AlpacaSecret string `yaml:"-"`
	FredKey      string `yaml:"-"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Port:                8090,
		MarketDataURL:       "https://data.alpaca.markets",
		TreasuryURL:         "https://api.stlouisfed.org",
		FactorDir:           "data",
		BarCacheTTLHours:    24,
		RateCacheTTLMinutes: 15,
		RequestsPerSecond:   3,
	}
}

// Load reads the YAML config at path on top of the defaults, then applies
// environment credentials. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.AlpacaKey = os.Getenv("ALPACA_API_KEY")
	cfg.AlpacaSecret = os.Getenv("ALPACA_SECRET_KEY")
	cfg.FredKey = os.Getenv("FRED_API_KEY")
	return cfg, nil
}
