// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Quote providers.
const (
	ProviderCatalog = "catalog"
	ProviderYahoo   = "yahoo"
	ProviderEODHD   = "eodhd"
)

type Config struct {
	Port       string `env:"PORT" envDefault:"5000"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	SeedBalance float64       `env:"SEED_BALANCE" envDefault:"100000"`
	Currency    string        `env:"CURRENCY" envDefault:"INR"`

	QuoteProvider     string        `env:"QUOTE_PROVIDER" envDefault:"catalog"`
	EODHDAPIKey       string        `env:"EODHD_API_KEY"`
	QuoteTTL          time.Duration `env:"QUOTE_TTL" envDefault:"10s"`
	QuoteStaleCeiling time.Duration `env:"QUOTE_STALE_CEILING" envDefault:"60s"`
	QuoteFetchTimeout time.Duration `env:"QUOTE_FETCH_TIMEOUT" envDefault:"3s"`
	SearchTTL         time.Duration `env:"SEARCH_TTL" envDefault:"10m"`

	LedgerFile    string `env:"LEDGER_FILE" envDefault:"wealthmind.jsonl"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MaxTxAttempts int    `env:"MAX_TX_ATTEMPTS" envDefault:"5"`

	RedisAddr    string   `env:"REDIS_ADDR"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"wealthmind.orders"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.SeedBalance < 0 {
		return fmt.Errorf("SEED_BALANCE must not be negative, got %v", c.SeedBalance)
	}
	switch c.QuoteProvider {
	case ProviderCatalog, ProviderYahoo:
	case ProviderEODHD:
		if c.EODHDAPIKey == "" {
			return fmt.Errorf("EODHD_API_KEY is required by the %q quote provider", c.QuoteProvider)
		}
	default:
		return fmt.Errorf("unknown QUOTE_PROVIDER %q, want %s, %s or %s", c.QuoteProvider, ProviderCatalog, ProviderYahoo, ProviderEODHD)
	}
	return nil
}
