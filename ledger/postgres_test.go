package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/jackc/pgx/v5/pgxpool"
)

// newTestPostgres connects to the database named by WEALTHMIND_TEST_DATABASE_URL,
// the test is skipped when it is not set.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("WEALTHMIND_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WEALTHMIND_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)
	p := NewPostgres(pool)
	if err := p.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPostgres_Update(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	id := fmt.Sprintf("pg-%d", time.Now().UnixNano())
	if err := p.CreateAccount(ctx, testAccount(id, id+"@x.com", 100000)); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if err := p.CreateAccount(ctx, testAccount(id+"-2", id+"@x.com", 100000)); !errors.Is(err, wealthmind.ErrEmailExists) {
		t.Errorf("CreateAccount(duplicate) error = %v, want ErrEmailExists", err)
	}

	if err := p.Update(ctx, id, buy("TCS.BO", 10, inr(3500))); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := p.Update(ctx, id, sell("TCS.BO", 20, inr(3500))); !errors.Is(err, wealthmind.ErrInsufficientHoldings) {
		t.Errorf("Update(oversell) error = %v, want ErrInsufficientHoldings", err)
	}
	s, err := p.Snapshot(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Account.Cash.Equal(inr(65000)) {
		t.Errorf("Cash = %v, want 65000", s.Account.Cash)
	}
	if len(s.Holdings) != 1 || s.Holdings[0].Quantity != 10 {
		t.Errorf("Holdings = %+v", s.Holdings)
	}
	orders, total, err := p.Orders(ctx, id, Page{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || orders[0].Symbol != "TCS.BO" {
		t.Errorf("Orders = %+v, total %d", orders, total)
	}
}

func TestPostgres_ConcurrentBuys(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	id := fmt.Sprintf("pg-%d", time.Now().UnixNano())
	if err := p.CreateAccount(ctx, testAccount(id, id+"@x.com", 5000)); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Update(ctx, id, func(tx Tx) error {
				return buy(fmt.Sprintf("S%d.BO", i), 1, inr(500))(tx)
			})
		}()
	}
	wg.Wait()
	a, err := p.Account(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if a.Cash.IsNegative() {
		t.Errorf("Cash = %v, overcommitted", a.Cash)
	}
}
