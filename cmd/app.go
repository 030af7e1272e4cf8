// Package cmd implements the wm CLI application: the API server and a few
// commands to query the market and the ledger from a terminal.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/etnz/wealthmind/config"
	"github.com/etnz/wealthmind/eodhd"
	"github.com/etnz/wealthmind/events"
	"github.com/etnz/wealthmind/ledger"
	"github.com/etnz/wealthmind/market"
	"github.com/etnz/wealthmind/yahoo"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&serveCmd{}, "server")
	c.Register(&migrateCmd{}, "server")

	c.Register(&quoteCmd{}, "market")
	c.Register(&searchCmd{}, "market")

	c.Register(&portfolioCmd{}, "accounts")
	c.Register(&historyCmd{}, "accounts")

	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var ledgerFile = flag.String("ledger-file", "", "Path to the ledger journal (JSONL format), overrides LEDGER_FILE")
var Verbose = flag.Bool("v", false, "Enable verbose logging")

// loadConfig reads the environment, then applies the global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("invalid environment: %w", err)
	}
	if *ledgerFile != "" {
		cfg.LedgerFile = *ledgerFile
	}
	return cfg, nil
}

// newLogger returns the production logger, or a development one in verbose mode.
func newLogger() *zap.Logger {
	var log *zap.Logger
	var err error
	if *Verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openLedger opens the PostgreSQL ledger when DATABASE_URL is set, the
// journaled memory ledger otherwise. The returned func releases it.
func openLedger(ctx context.Context, cfg config.Config, log *zap.Logger) (ledger.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot connect to the database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("cannot reach the database: %w", err)
		}
		log.Info("ledger opened", zap.String("store", "postgres"))
		return ledger.NewPostgres(pool), pool.Close, nil
	}

	m, err := ledger.OpenMemory(cfg.LedgerFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open ledger %q: %w", cfg.LedgerFile, err)
	}
	log.Info("ledger opened", zap.String("store", "journal"), zap.String("file", cfg.LedgerFile))
	return m, func() {
		if err := m.Close(); err != nil {
			log.Warn("ledger not closed", zap.Error(err))
		}
	}, nil
}

// newProvider returns the configured quote provider.
func newProvider(cfg config.Config, log *zap.Logger) (market.Provider, error) {
	switch cfg.QuoteProvider {
	case config.ProviderCatalog, "":
		return market.NewCatalog(rand.New(rand.NewSource(time.Now().UnixNano()))), nil
	case config.ProviderYahoo:
		return yahoo.New(log), nil
	case config.ProviderEODHD:
		if cfg.EODHDAPIKey == "" {
			return nil, errors.New("EODHD_API_KEY is not set")
		}
		return eodhd.New(cfg.EODHDAPIKey, log), nil
	default:
		return nil, fmt.Errorf("unknown quote provider %q", cfg.QuoteProvider)
	}
}

// newMarket returns the market data cache in front of the configured
// provider, mirrored to Redis when REDIS_ADDR is set.
func newMarket(ctx context.Context, cfg config.Config, log *zap.Logger) (*market.Cache, func(), error) {
	provider, err := newProvider(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	opts := market.Options{
		TTL:          cfg.QuoteTTL,
		StaleCeiling: cfg.QuoteStaleCeiling,
		FetchTimeout: cfg.QuoteFetchTimeout,
		SearchTTL:    cfg.SearchTTL,
		Logger:       log,
	}
	closers := []func(){}
	if cfg.RedisAddr != "" {
		r := market.NewRedis(cfg.RedisAddr)
		if err := r.Ping(ctx); err != nil {
			// the mirror is an optimization, the cache works without it.
			log.Warn("redis mirror unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			r.Close()
		} else {
			opts.Mirror = r
			closers = append(closers, func() { r.Close() })
		}
	}
	cache, err := market.NewCache(provider, opts)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, cache.Close)
	return cache, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// newPublisher returns the kafka publisher when KAFKA_BROKERS is set, a log publisher otherwise.
func newPublisher(cfg config.Config, log *zap.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) > 0 {
		log.Info("publishing order events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	}
	return events.Log{Logger: log.Named("events")}
}

// printMarkdown renders md for the terminal, or prints it as is when it cannot be rendered.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}
