package market

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/etnz/wealthmind"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options tunes a Cache. Zero values select the defaults.
type Options struct {
	TTL          time.Duration // freshness of a quote, default 10s
	StaleCeiling time.Duration // max age of a quote served after a failed refresh, default 60s
	FetchTimeout time.Duration // bound of one upstream fetch, default 3s
	SearchTTL    time.Duration // default 10m
	Parallelism  int           // concurrent fetches of a batch, default 8

	Mirror Mirror // optional
	Logger *zap.Logger
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.StaleCeiling <= 0 {
		o.StaleCeiling = 60 * time.Second
	}
	if o.StaleCeiling < o.TTL {
		o.StaleCeiling = o.TTL
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 3 * time.Second
	}
	if o.SearchTTL <= 0 {
		o.SearchTTL = 10 * time.Minute
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// maxSearchResults caps the length of a search answer.
const maxSearchResults = 20

// Cache is the Market Data Cache.
//
// Each symbol's last quote is kept in memory. A quote younger than TTL is
// served as is. Older quotes are refreshed from the Provider, with at most one
// fetch in flight per symbol: concurrent callers wait for the same fetch and
// observe the same result. When the refresh fails, the cached quote is still
// served, flagged stale, as long as it is younger than StaleCeiling.
type Cache struct {
	provider Provider
	opts     Options
	log      *zap.Logger

	mu      sync.RWMutex // guards entries
	entries map[string]wealthmind.Quote

	inflight singleflight.Group
	search   *ristretto.Cache

	fetches  atomic.Int64 // upstream quote fetches
	failures atomic.Int64 // failed upstream quote fetches
}

// NewCache returns a Cache in front of provider.
func NewCache(provider Provider, opts Options) (*Cache, error) {
	opts = opts.withDefaults()
	search, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 10, // number of cached searches
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		provider: provider,
		opts:     opts,
		log:      opts.Logger,
		entries:  make(map[string]wealthmind.Quote),
		search:   search,
	}, nil
}

// Close releases the search cache.
func (c *Cache) Close() { c.search.Close() }

func (c *Cache) entry(symbol string) (wealthmind.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[symbol]
	return q, ok
}

func (c *Cache) store(q wealthmind.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// never replace a quote by an older one
	if cur, ok := c.entries[q.Symbol]; ok && cur.FetchedAt.After(q.FetchedAt) {
		return
	}
	c.entries[q.Symbol] = q
}

// GetQuote returns the quote of symbol.
//
// It fails with wealthmind.ErrSymbolNotFound when the provider does not know
// the symbol, and wealthmind.ErrQuoteUnavailable when no quote young enough
// can be served.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (wealthmind.Quote, error) {
	symbol = wealthmind.NormalizeSymbol(symbol)
	if symbol == "" {
		return wealthmind.Quote{}, wealthmind.ErrInvalidSymbol
	}
	if q, ok := c.entry(symbol); ok && q.Age(c.opts.Now()) < c.opts.TTL {
		return q, nil
	}

	// The fetch outlives the caller that started it: other callers may be
	// waiting for it. It is bounded by FetchTimeout instead.
	detached := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(symbol, func() (any, error) {
		return c.refresh(detached, symbol)
	})
	// a provider ignoring its context must not hold the caller either.
	timer := time.NewTimer(c.opts.FetchTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(symbol, res.Err)
		}
		return res.Val.(wealthmind.Quote), nil
	case <-timer.C:
		return c.fallback(symbol, context.DeadlineExceeded)
	case <-ctx.Done():
		return wealthmind.Quote{}, ctx.Err()
	}
}

// refresh fetches symbol upstream and stores the result.
func (c *Cache) refresh(ctx context.Context, symbol string) (wealthmind.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	if c.opts.Mirror != nil {
		q, ok, err := c.opts.Mirror.Get(ctx, symbol)
		if err != nil {
			c.log.Warn("quote mirror read failed", zap.String("symbol", symbol), zap.Error(err))
		}
		if ok && q.Age(c.opts.Now()) < c.opts.TTL {
			q.Stale = false
			c.store(q)
			return q, nil
		}
	}

	c.fetches.Add(1)
	start := c.opts.Now()
	q, err := c.provider.Quote(ctx, symbol)
	if err != nil {
		c.failures.Add(1)
		c.log.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Duration("elapsed", c.opts.Now().Sub(start)), zap.Error(err))
		return wealthmind.Quote{}, err
	}
	if q.Price <= 0 {
		c.failures.Add(1)
		return wealthmind.Quote{}, wealthmind.Errorf(wealthmind.ErrQuoteUnavailable, "%s: non positive price %v", symbol, q.Price)
	}
	q.Symbol = symbol
	q.FetchedAt = c.opts.Now()
	q.Stale = false
	q = q.Classified()
	c.store(q)

	if c.opts.Mirror != nil {
		if err := c.opts.Mirror.Set(ctx, q, c.opts.TTL); err != nil {
			c.log.Warn("quote mirror write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	c.log.Debug("quote fetched", zap.String("symbol", symbol), zap.Float64("price", q.Price))
	return q, nil
}

// fallback serves the cached quote of symbol after a failed refresh.
func (c *Cache) fallback(symbol string, cause error) (wealthmind.Quote, error) {
	q, ok := c.entry(symbol)
	if ok && q.Age(c.opts.Now()) <= c.opts.StaleCeiling {
		q.Stale = true
		return q, nil
	}
	if errors.Is(cause, wealthmind.ErrSymbolNotFound) || errors.Is(cause, wealthmind.ErrQuoteUnavailable) {
		return wealthmind.Quote{}, cause
	}
	return wealthmind.Quote{}, wealthmind.Errorf(wealthmind.ErrQuoteUnavailable, "%s: %v", symbol, cause)
}

// GetQuotes returns the quotes of symbols, in request order, and the number
// of symbols for which no quote could be served. Duplicates are served once.
func (c *Cache) GetQuotes(ctx context.Context, symbols []string) ([]wealthmind.Quote, int) {
	seen := make(map[string]bool, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = wealthmind.NormalizeSymbol(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		unique = append(unique, s)
	}

	results := make([]*wealthmind.Quote, len(unique))
	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, s := range unique {
		g.Go(func() error {
			q, err := c.GetQuote(ctx, s)
			if err != nil {
				c.log.Debug("quote omitted from batch", zap.String("symbol", s), zap.Error(err))
				return nil // omitted, the others carry on
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]wealthmind.Quote, 0, len(unique))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes, len(unique) - len(quotes)
}

// LastKnown returns the cached quote of symbol whatever its age, flagged
// stale when it is older than TTL. It never calls the provider.
func (c *Cache) LastKnown(symbol string) (wealthmind.Quote, bool) {
	q, ok := c.entry(wealthmind.NormalizeSymbol(symbol))
	if !ok {
		return q, false
	}
	q.Stale = q.Age(c.opts.Now()) >= c.opts.TTL
	return q, true
}

// Search returns the stocks matching query: the symbols starting with the
// query first, then by symbol. Results are cached for SearchTTL.
func (c *Cache) Search(ctx context.Context, query string) ([]wealthmind.Stock, error) {
	key := strings.ToUpper(strings.TrimSpace(query))
	if key == "" {
		return []wealthmind.Stock{}, nil
	}
	if v, ok := c.search.Get(key); ok {
		return v.([]wealthmind.Stock), nil
	}

	stocks, err := c.provider.Search(ctx, key)
	if err != nil {
		c.log.Warn("search failed", zap.String("query", key), zap.Error(err))
		return nil, wealthmind.Errorf(wealthmind.ErrQuoteUnavailable, "search %q: %v", query, err)
	}
	res := make([]wealthmind.Stock, len(stocks))
	copy(res, stocks)
	sort.SliceStable(res, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToUpper(res[i].Symbol), key)
		pj := strings.HasPrefix(strings.ToUpper(res[j].Symbol), key)
		if pi != pj {
			return pi
		}
		return res[i].Symbol < res[j].Symbol
	})
	if len(res) > maxSearchResults {
		res = res[:maxSearchResults]
	}
	c.search.SetWithTTL(key, res, 1, c.opts.SearchTTL)
	c.search.Wait()
	return res, nil
}

// Stats describes the cache activity.
type Stats struct {
	Symbols  int   `json:"symbols"`
	Fetches  int64 `json:"fetches"`
	Failures int64 `json:"failures"`
}

// Stats returns the cache activity counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{Symbols: n, Fetches: c.fetches.Load(), Failures: c.failures.Load()}
}
