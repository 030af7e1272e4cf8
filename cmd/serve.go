package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/auth"
	"github.com/etnz/wealthmind/orders"
	"github.com/etnz/wealthmind/portfolio"
	"github.com/etnz/wealthmind/server"
)

type serveCmd struct {
	port       string
	corsOrigin string
	provider   string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the WealthMind API server" }
func (*serveCmd) Usage() string {
	return `wm serve [-port <port>] [-cors <origin>] [-provider catalog|yahoo|eodhd]

  Serves the /api endpoints. The server is configured from the environment
  (see 'wm topic configuration'), flags take precedence.

  JWT_SECRET must be set.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.port, "port", "", "Port to listen on, overrides PORT.")
	f.StringVar(&c.corsOrigin, "cors", "", "Allowed CORS origin, overrides CORS_ORIGIN.")
	f.StringVar(&c.provider, "provider", "", "Quote provider, overrides QUOTE_PROVIDER.")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.port != "" {
		cfg.Port = c.port
	}
	if c.corsOrigin != "" {
		cfg.CORSOrigin = c.corsOrigin
	}
	if c.provider != "" {
		cfg.QuoteProvider = c.provider
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	logger := newLogger()
	defer logger.Sync()
	if !*Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("ledger", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer closeLedger()

	cache, closeMarket, err := newMarket(ctx, cfg, logger)
	if err != nil {
		logger.Error("market", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer closeMarket()

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("order events not flushed", zap.Error(err))
		}
	}()

	signer := auth.NewJWTSigner(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.New(store, auth.BcryptHasher{}, signer, wealthmind.M(cfg.SeedBalance, cfg.Currency), logger)
	engine := orders.New(store, cache,
		orders.WithPublisher(publisher),
		orders.WithLogger(logger),
		orders.WithMaxAttempts(cfg.MaxTxAttempts),
	)
	valuation := portfolio.New(store, cache, logger)

	s := server.New(authService, cache, engine, valuation, logger, cfg.CORSOrigin)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("port", cfg.Port), zap.String("provider", cfg.QuoteProvider))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http", zap.Error(err))
			return subcommands.ExitFailure
		}
	case <-ctx.Done():
	}

	// graceful shutdown
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	if err := srv.Shutdown(ctxShut); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return subcommands.ExitSuccess
}
