package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/etnz/wealthmind/renderer"
)

type searchCmd struct {
	provider string
}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "search symbols by symbol or name" }
func (*searchCmd) Usage() string {
	return `wm search [-provider catalog|yahoo|eodhd] <search term>

  Searches the quote provider for symbols or company names matching the
  search term, case-insensitively. Symbols starting with the term come first.
`
}

func (c *searchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provider, "provider", "", "Quote provider, overrides QUOTE_PROVIDER.")
}

func (c *searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: a search term is required.")
		return subcommands.ExitUsageError
	}
	query := strings.Join(f.Args(), " ")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.provider != "" {
		cfg.QuoteProvider = c.provider
	}
	cfg.RedisAddr = ""

	cache, closeMarket, err := newMarket(ctx, cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeMarket()

	stocks, err := cache.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching %q: %v\n", query, err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderSearch(&renderer.Search{Query: query, Stocks: stocks}))
	return subcommands.ExitSuccess
}
