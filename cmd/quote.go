package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/etnz/wealthmind/renderer"
)

type quoteCmd struct {
	provider string
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "print the quotes of symbols" }
func (*quoteCmd) Usage() string {
	return `wm quote [-provider catalog|yahoo|eodhd] <symbol>...

  Prints the live quote and risk level of each symbol. Symbols that cannot
  be quoted are counted, not reported as an error.

Usage Examples:
$ wm quote TCS.BO INFY.BO
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provider, "provider", "", "Quote provider, overrides QUOTE_PROVIDER.")
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one symbol is required.")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.provider != "" {
		cfg.QuoteProvider = c.provider
	}
	cfg.RedisAddr = "" // a one shot command has nothing to share

	logger := zap.NewNop()
	if *Verbose {
		logger = newLogger()
	}
	cache, closeMarket, err := newMarket(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeMarket()

	quotes, omitted := cache.GetQuotes(ctx, f.Args())
	printMarkdown(renderer.RenderQuotes(&renderer.Quotes{Quotes: quotes, Omitted: omitted}))
	if len(quotes) == 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
