package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/etnz/wealthmind"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	r := NewRedis(s.Addr())
	t.Cleanup(func() { r.Close() })
	return r, s
}

func TestRedis_GetSet(t *testing.T) {
	r, s := newTestRedis(t)
	ctx := context.Background()

	if _, ok, err := r.Get(ctx, "TCS.BO"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v", ok, err)
	}
	at := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	q := wealthmind.Quote{Symbol: "TCS.BO", Price: 3500, Change: 35, ChangePercent: 1.01, RiskLevel: wealthmind.Medium, FetchedAt: at}
	if err := r.Set(ctx, q, 10*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := r.Get(ctx, "TCS.BO")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Price != 3500 || got.RiskLevel != wealthmind.Medium || !got.FetchedAt.Equal(at) {
		t.Errorf("Get() = %+v", got)
	}

	s.FastForward(11 * time.Second)
	if _, ok, _ := r.Get(ctx, "TCS.BO"); ok {
		t.Error("Get() after TTL found the quote")
	}
}

// TestCache_Mirror checks that a quote fetched by one instance is served to
// another one without an upstream call.
func TestCache_Mirror(t *testing.T) {
	r, _ := newTestRedis(t)
	clk := newClock()
	ctx := context.Background()

	first := &fakeProvider{prices: map[string]float64{"TCS.BO": 3500}}
	a, err := NewCache(first, Options{Mirror: r, Now: clk.Now})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	second := &fakeProvider{prices: map[string]float64{"TCS.BO": 9999}}
	b, err := NewCache(second, Options{Mirror: r, Now: clk.Now})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := a.GetQuote(ctx, "TCS.BO"); err != nil {
		t.Fatal(err)
	}
	q, err := b.GetQuote(ctx, "TCS.BO")
	if err != nil {
		t.Fatal(err)
	}
	if q.Price != 3500 {
		t.Errorf("Price = %v, want the mirrored 3500", q.Price)
	}
	if n := second.calls.Load(); n != 0 {
		t.Errorf("second provider called %d times, want 0", n)
	}
}
