// Package market serves market quotes from an upstream provider through a
// cache with an explicit freshness and staleness policy.
package market

import (
	"context"

	"github.com/etnz/wealthmind"
)

// Provider is an upstream source of market data.
//
// Quote returns an error wrapping wealthmind.ErrSymbolNotFound when the
// provider does not know the symbol. The returned quote needs not be
// classified, the cache derives the risk level.
type Provider interface {
	Quote(ctx context.Context, symbol string) (wealthmind.Quote, error)
	Search(ctx context.Context, query string) ([]wealthmind.Stock, error)
}
