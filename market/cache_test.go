package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/wealthmind"
)

// fakeProvider serves fixed prices and counts upstream calls.
type fakeProvider struct {
	prices map[string]float64
	calls  atomic.Int64
	gate   chan struct{} // when not nil, Quote blocks until it is closed
	fail   atomic.Bool
	hang   bool // block until the context is done
}

func (p *fakeProvider) Quote(ctx context.Context, symbol string) (wealthmind.Quote, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	if p.hang {
		<-ctx.Done()
		return wealthmind.Quote{}, ctx.Err()
	}
	if p.fail.Load() {
		return wealthmind.Quote{}, errors.New("upstream is down")
	}
	price, ok := p.prices[symbol]
	if !ok {
		return wealthmind.Quote{}, wealthmind.ErrSymbolNotFound
	}
	return wealthmind.Quote{Symbol: symbol, Price: price, Change: price / 100}, nil
}

func (p *fakeProvider) Search(ctx context.Context, query string) ([]wealthmind.Stock, error) {
	return nil, nil
}

// clock is a manual time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(t *testing.T, p Provider, clk *clock) *Cache {
	t.Helper()
	c, err := NewCache(p, Options{TTL: 10 * time.Second, StaleCeiling: 60 * time.Second, FetchTimeout: 200 * time.Millisecond, Now: clk.Now})
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCache_GetQuote(t *testing.T) {
	clk := newClock()
	p := &fakeProvider{prices: map[string]float64{"TCS.BO": 3500}}
	c := newTestCache(t, p, clk)
	ctx := context.Background()

	first, err := c.GetQuote(ctx, "tcs.bo")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if first.Symbol != "TCS.BO" || first.Price != 3500 || first.RiskLevel != wealthmind.Medium {
		t.Errorf("GetQuote() = %+v", first)
	}

	clk.Advance(5 * time.Second)
	second, err := c.GetQuote(ctx, "TCS.BO")
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("GetQuote() within TTL = %+v, want the cached %+v", second, first)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}

	clk.Advance(6 * time.Second)
	third, err := c.GetQuote(ctx, "TCS.BO")
	if err != nil {
		t.Fatal(err)
	}
	if n := p.calls.Load(); n != 2 {
		t.Errorf("provider called %d times after expiry, want 2", n)
	}
	if !third.FetchedAt.After(first.FetchedAt) {
		t.Errorf("FetchedAt = %v, want a refreshed quote", third.FetchedAt)
	}
}

func TestCache_Coalescing(t *testing.T) {
	clk := newClock()
	p := &fakeProvider{prices: map[string]float64{"INFY.BO": 1520.8}, gate: make(chan struct{})}
	c := newTestCache(t, p, clk)

	const n = 50
	var wg sync.WaitGroup
	quotes := make([]wealthmind.Quote, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quotes[i], errs[i] = c.GetQuote(context.Background(), "INFY.BO")
		}()
	}
	// let the callers pile up on the first fetch.
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d: error = %v", i, errs[i])
		}
		if quotes[i] != quotes[0] {
			t.Errorf("caller %d observed %+v, want %+v", i, quotes[i], quotes[0])
		}
	}
}

func TestCache_StaleFallback(t *testing.T) {
	clk := newClock()
	p := &fakeProvider{prices: map[string]float64{"TCS.BO": 3500}}
	c := newTestCache(t, p, clk)
	ctx := context.Background()

	if _, err := c.GetQuote(ctx, "TCS.BO"); err != nil {
		t.Fatal(err)
	}
	p.fail.Store(true)

	clk.Advance(30 * time.Second)
	q, err := c.GetQuote(ctx, "TCS.BO")
	if err != nil {
		t.Fatalf("GetQuote() within the stale ceiling error = %v", err)
	}
	if !q.Stale || q.Price != 3500 {
		t.Errorf("GetQuote() = %+v, want the stale cached quote", q)
	}

	clk.Advance(31 * time.Second)
	_, err = c.GetQuote(ctx, "TCS.BO")
	if !errors.Is(err, wealthmind.ErrQuoteUnavailable) {
		t.Errorf("GetQuote() beyond the stale ceiling error = %v, want ErrQuoteUnavailable", err)
	}
}

func TestCache_FetchTimeout(t *testing.T) {
	clk := newClock()
	p := &fakeProvider{hang: true}
	c := newTestCache(t, p, clk)

	start := time.Now()
	_, err := c.GetQuote(context.Background(), "TCS.BO")
	if !errors.Is(err, wealthmind.ErrQuoteUnavailable) {
		t.Errorf("GetQuote() error = %v, want ErrQuoteUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("GetQuote() blocked for %v", elapsed)
	}
}

func TestCache_CallerCancellation(t *testing.T) {
	clk := newClock()
	p := &fakeProvider{prices: map[string]float64{"TCS.BO": 3500}, gate: make(chan struct{})}
	c := newTestCache(t, p, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetQuote(ctx, "TCS.BO"); !errors.Is(err, context.Canceled) {
		t.Errorf("GetQuote() error = %v, want context.Canceled", err)
	}
	// the abandoned fetch completes for the next caller.
	close(p.gate)
	q, err := c.GetQuote(context.Background(), "TCS.BO")
	if err != nil || q.Price != 3500 {
		t.Errorf("GetQuote() = %+v, %v", q, err)
	}
}

func TestCache_NotFound(t *testing.T) {
	c := newTestCache(t, &fakeProvider{}, newClock())
	_, err := c.GetQuote(context.Background(), "NOPE.BO")
	if !errors.Is(err, wealthmind.ErrSymbolNotFound) {
		t.Errorf("GetQuote() error = %v, want ErrSymbolNotFound", err)
	}
	if _, err := c.GetQuote(context.Background(), "  "); !errors.Is(err, wealthmind.ErrInvalidSymbol) {
		t.Errorf("GetQuote(blank) error = %v, want ErrInvalidSymbol", err)
	}
}

func TestCache_GetQuotes(t *testing.T) {
	p := &fakeProvider{prices: map[string]float64{"TCS.BO": 3500, "ITC.BO": 425.5, "WIPRO.BO": 415.8}}
	c := newTestCache(t, p, newClock())

	quotes, omitted := c.GetQuotes(context.Background(), []string{"wipro.bo", "NOPE.BO", "TCS.BO", "ITC.BO", "TCS.BO"})
	if omitted != 1 {
		t.Errorf("omitted = %d, want 1", omitted)
	}
	want := []string{"WIPRO.BO", "TCS.BO", "ITC.BO"}
	if len(quotes) != len(want) {
		t.Fatalf("GetQuotes() returned %d quotes, want %d", len(quotes), len(want))
	}
	for i, q := range quotes {
		if q.Symbol != want[i] {
			t.Errorf("quotes[%d] = %s, want %s", i, q.Symbol, want[i])
		}
	}
}

func TestCache_LastKnown(t *testing.T) {
	clk := newClock()
	p := &fakeProvider{prices: map[string]float64{"TCS.BO": 3500}}
	c := newTestCache(t, p, clk)

	if _, ok := c.LastKnown("TCS.BO"); ok {
		t.Error("LastKnown() found a quote never fetched")
	}
	if _, err := c.GetQuote(context.Background(), "TCS.BO"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Hour)
	q, ok := c.LastKnown("tcs.bo")
	if !ok || !q.Stale || q.Price != 3500 {
		t.Errorf("LastKnown() = %+v, %v", q, ok)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("LastKnown() called the provider")
	}
}

func TestCache_Search(t *testing.T) {
	c := newTestCache(t, NewCatalog(nil), newClock())
	ctx := context.Background()

	got, err := c.Search(ctx, "bank")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []string{"AXISBANK.BO", "HDFCBANK.BO", "ICICIBANK.BO", "KOTAKBANK.BO", "SBIN.BO"}
	if len(got) != len(want) {
		t.Fatalf("Search(bank) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Symbol != want[i] {
			t.Errorf("Search(bank)[%d] = %s, want %s", i, got[i].Symbol, want[i])
		}
	}

	// symbol prefixes come first.
	got, _ = c.Search(ctx, "i")
	if len(got) == 0 || got[0].Symbol != "ICICIBANK.BO" {
		t.Errorf("Search(i) = %v, want ICICIBANK.BO first", got)
	}

	got, err = c.Search(ctx, "zzz")
	if err != nil || len(got) != 0 {
		t.Errorf("Search(zzz) = %v, %v, want empty", got, err)
	}
}
