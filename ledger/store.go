// Package ledger stores accounts, holdings and orders.
//
// The ledger is the single source of truth for cash balances and holdings.
// All mutations of an account go through Store.Update, which applies a
// set of staged changes atomically: no reader ever observes a cash balance
// without the matching holding and order records.
package ledger

import (
	"context"
	"sort"

	"github.com/etnz/wealthmind"
)

// Store is a durable keyed storage of accounts, holdings and orders.
type Store interface {
	// CreateAccount stores a new account. It fails with wealthmind.ErrEmailExists
	// when the normalized email is already registered.
	CreateAccount(ctx context.Context, account wealthmind.Account) error
	// Account returns the account with this id, or wealthmind.ErrAccountNotFound.
	Account(ctx context.Context, id string) (wealthmind.Account, error)
	// AccountByEmail returns the account registered with this email, or wealthmind.ErrAccountNotFound.
	AccountByEmail(ctx context.Context, email string) (wealthmind.Account, error)
	// Snapshot returns the account and its holdings, read consistently.
	Snapshot(ctx context.Context, id string) (Snapshot, error)
	// Orders returns a page of the account's orders, newest first, and the total count.
	Orders(ctx context.Context, id string, page Page) ([]wealthmind.Order, int, error)
	// Update runs fn within a transaction on the account. Changes staged on the
	// Tx are committed atomically if fn returns nil, and discarded otherwise.
	// Updates on the same account are serialized; updates on different
	// accounts do not contend. A concurrent modification that could not be
	// serialized is reported as wealthmind.ErrConflict.
	Update(ctx context.Context, id string, fn func(Tx) error) error
}

// Tx is the view of one account inside Store.Update.
type Tx interface {
	Account() wealthmind.Account
	Holding(symbol string) (wealthmind.Holding, bool)
	SetCash(cash wealthmind.Money)
	AddRealized(pl wealthmind.Money)
	// PutHolding stages the new state of a holding, a zero quantity deletes it.
	PutHolding(h wealthmind.Holding)
	AppendOrder(o wealthmind.Order)
}

// Snapshot is a consistent view of an account and its holdings.
type Snapshot struct {
	Account  wealthmind.Account
	Holdings []wealthmind.Holding // sorted by symbol
}

// Page selects a window of an order history.
type Page struct {
	Limit  int // default 50
	Number int // 1-based
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Normalize returns the page with defaults applied.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Number <= 0 {
		p.Number = 1
	}
	return p
}

// Offset returns the number of records to skip.
func (p Page) Offset() int { return (p.Number - 1) * p.Limit }

// staging implements Tx over a base state.
type staging struct {
	account  wealthmind.Account
	holdings map[string]wealthmind.Holding
	touched  map[string]wealthmind.Holding
	orders   []wealthmind.Order
}

func newStaging(account wealthmind.Account, holdings map[string]wealthmind.Holding) *staging {
	return &staging{
		account:  account,
		holdings: holdings,
		touched:  make(map[string]wealthmind.Holding),
	}
}

func (s *staging) Account() wealthmind.Account { return s.account }

func (s *staging) Holding(symbol string) (wealthmind.Holding, bool) {
	if h, ok := s.touched[symbol]; ok {
		return h, h.Quantity > 0
	}
	h, ok := s.holdings[symbol]
	return h, ok
}

func (s *staging) SetCash(cash wealthmind.Money) { s.account.Cash = cash }

func (s *staging) AddRealized(pl wealthmind.Money) {
	s.account.RealizedPL = s.account.RealizedPL.Add(pl)
}

func (s *staging) PutHolding(h wealthmind.Holding) { s.touched[h.Symbol] = h }

func (s *staging) AppendOrder(o wealthmind.Order) { s.orders = append(s.orders, o) }

// touchedHoldings returns the staged holdings sorted by symbol.
func (s *staging) touchedHoldings() []wealthmind.Holding {
	res := make([]wealthmind.Holding, 0, len(s.touched))
	for _, h := range s.touched {
		res = append(res, h)
	}
	sortHoldings(res)
	return res
}

func sortHoldings(h []wealthmind.Holding) {
	sort.Slice(h, func(i, j int) bool { return h[i].Symbol < h[j].Symbol })
}
