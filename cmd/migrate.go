package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etnz/wealthmind/ledger"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create the PostgreSQL ledger schema" }
func (*migrateCmd) Usage() string {
	return `wm migrate

  Creates the ledger tables in the database of DATABASE_URL. Existing tables
  are kept.
`
}

func (*migrateCmd) SetFlags(f *flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: DATABASE_URL is not set.")
		return subcommands.ExitUsageError
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to the database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer pool.Close()

	if err := ledger.NewPostgres(pool).Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error migrating the ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println("Ledger schema is up to date.")
	return subcommands.ExitSuccess
}
