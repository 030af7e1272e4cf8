package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/etnz/wealthmind/ledger"
	"github.com/etnz/wealthmind/portfolio"
	"github.com/etnz/wealthmind/renderer"
)

type portfolioCmd struct {
	email string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "display the valuation of an account" }
func (*portfolioCmd) Usage() string {
	return `wm portfolio -email <email>

  Values the holdings of an account at live quotes and prints its cash,
  positions and profit/loss. Positions without a live quote are marked.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "Email of the account.")
}

func (c *portfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" {
		fmt.Fprintln(os.Stderr, "Error: -email is required.")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	cfg.RedisAddr = ""

	logger := zap.NewNop()
	store, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeLedger()

	account, err := store.AccountByEmail(ctx, c.email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %q: %v\n", c.email, err)
		return subcommands.ExitFailure
	}

	cache, closeMarket, err := newMarket(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeMarket()

	valuation := portfolio.New(store, cache, logger)
	p, err := valuation.Portfolio(ctx, account.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error valuing the portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	stats, err := valuation.Stats(ctx, account.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing the statistics: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderPortfolio(&renderer.Portfolio{Owner: account.Name, Portfolio: p, Stats: stats}))
	return subcommands.ExitSuccess
}

type historyCmd struct {
	email string
	limit int
	page  int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "display the orders of an account" }
func (*historyCmd) Usage() string {
	return `wm history -email <email> [-n <limit>] [-page <page>]

  Prints the executed orders of an account, newest first.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "Email of the account.")
	f.IntVar(&c.limit, "n", 50, "Number of orders per page.")
	f.IntVar(&c.page, "page", 1, "Page to print, starting at 1.")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" {
		fmt.Fprintln(os.Stderr, "Error: -email is required.")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, closeLedger, err := openLedger(ctx, cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeLedger()

	account, err := store.AccountByEmail(ctx, c.email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %q: %v\n", c.email, err)
		return subcommands.ExitFailure
	}
	list, total, err := store.Orders(ctx, account.ID, ledger.Page{Limit: c.limit, Number: c.page}.Normalize())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading the orders: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderHistory(&renderer.History{Owner: account.Name, Orders: list, Total: total}))
	return subcommands.ExitSuccess
}
