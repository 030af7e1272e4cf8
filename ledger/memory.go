package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/etnz/wealthmind"
)

// Memory is an in-process Store, optionally backed by a JSONL journal.
//
// Each account has its own lock serializing updates, and publishes an
// immutable state through an atomic pointer so that readers never block
// and never observe a half-applied update.
type Memory struct {
	mu       sync.RWMutex // guards accounts and emails
	accounts map[string]*entry
	emails   map[string]string // normalized email -> account id

	journal *Journal
	file    *os.File
}

type entry struct {
	mu    sync.Mutex // serializes updates
	state atomic.Pointer[state]
}

// state is never modified once published.
type state struct {
	account  wealthmind.Account
	holdings map[string]wealthmind.Holding
	orders   []wealthmind.Order // chronological
}

// NewMemory returns an empty, volatile store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*entry),
		emails:   make(map[string]string),
	}
}

// OpenMemory returns a store replayed from the journal file at path. The file
// is created if missing, and every later mutation is appended to it before
// it becomes visible.
func OpenMemory(path string) (*Memory, error) {
	m := NewMemory()
	if f, err := os.Open(path); err == nil {
		valid, err := decodeJournal(f, m)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("could not replay journal %q: %w", path, err)
		}
		// drop the remainder of an interrupted write before appending.
		if info, err := os.Stat(path); err == nil && info.Size() > valid {
			if err := os.Truncate(path, valid); err != nil {
				return nil, fmt.Errorf("could not repair journal %q: %w", path, err)
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not open journal %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open journal %q for writing: %w", path, err)
	}
	m.file = f
	m.journal = NewJournal(f)
	return m, nil
}

// Close closes the journal file, if any.
func (m *Memory) Close() error {
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}

func (m *Memory) entry(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.accounts[id]
	if !ok {
		return nil, wealthmind.Errorf(wealthmind.ErrAccountNotFound, "account %q", id)
	}
	return e, nil
}

// insert adds an account without journaling it.
func (m *Memory) insert(a wealthmind.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(a)
}

func (m *Memory) insertLocked(a wealthmind.Account) error {
	if _, exists := m.emails[a.Email]; exists {
		return wealthmind.ErrEmailExists
	}
	if _, exists := m.accounts[a.ID]; exists {
		return fmt.Errorf("duplicate account id %q", a.ID)
	}
	e := new(entry)
	e.state.Store(&state{account: a, holdings: map[string]wealthmind.Holding{}})
	m.accounts[a.ID] = e
	m.emails[a.Email] = a.ID
	return nil
}

// replay applies a journaled commit.
func (m *Memory) replay(cmd commitCmd) error {
	e, err := m.entry(cmd.Account)
	if err != nil {
		return err
	}
	cur := e.state.Load()
	account := cur.account
	account.Cash = wealthmind.M(cmd.Cash, cmd.Currency)
	account.RealizedPL = wealthmind.M(cmd.RealizedPL, cmd.Currency)
	tx := newStaging(account, cur.holdings)
	for _, h := range cmd.Holdings {
		tx.PutHolding(wealthmind.Holding{Symbol: h.Symbol, Quantity: h.Quantity, AvgCost: wealthmind.M(h.AvgCost, cmd.Currency)})
	}
	tx.orders = cmd.Orders
	e.state.Store(cur.apply(tx))
	return nil
}

// apply returns the state after committing tx.
func (s *state) apply(tx *staging) *state {
	next := &state{
		account:  tx.account,
		holdings: make(map[string]wealthmind.Holding, len(s.holdings)+len(tx.touched)),
		// the full slice expression forces a copy on append, s.orders stays untouched.
		orders: append(s.orders[:len(s.orders):len(s.orders)], tx.orders...),
	}
	for k, h := range s.holdings {
		next.holdings[k] = h
	}
	for k, h := range tx.touched {
		if h.Quantity == 0 {
			delete(next.holdings, k)
			continue
		}
		next.holdings[k] = h
	}
	return next
}

// CreateAccount implements Store.
func (m *Memory) CreateAccount(ctx context.Context, a wealthmind.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.Email = wealthmind.NormalizeEmail(a.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[a.Email]; exists {
		return wealthmind.ErrEmailExists
	}
	if m.journal != nil {
		if err := m.journal.open(a); err != nil {
			return err
		}
	}
	return m.insertLocked(a)
}

// Account implements Store.
func (m *Memory) Account(ctx context.Context, id string) (wealthmind.Account, error) {
	e, err := m.entry(id)
	if err != nil {
		return wealthmind.Account{}, err
	}
	return e.state.Load().account, nil
}

// AccountByEmail implements Store.
func (m *Memory) AccountByEmail(ctx context.Context, email string) (wealthmind.Account, error) {
	m.mu.RLock()
	id, ok := m.emails[wealthmind.NormalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return wealthmind.Account{}, wealthmind.ErrAccountNotFound
	}
	return m.Account(ctx, id)
}

// Snapshot implements Store.
func (m *Memory) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	e, err := m.entry(id)
	if err != nil {
		return Snapshot{}, err
	}
	s := e.state.Load()
	res := Snapshot{Account: s.account, Holdings: make([]wealthmind.Holding, 0, len(s.holdings))}
	for _, h := range s.holdings {
		res.Holdings = append(res.Holdings, h)
	}
	sortHoldings(res.Holdings)
	return res, nil
}

// Orders implements Store.
func (m *Memory) Orders(ctx context.Context, id string, page Page) ([]wealthmind.Order, int, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, 0, err
	}
	orders := e.state.Load().orders
	page = page.Normalize()
	total := len(orders)
	res := make([]wealthmind.Order, 0, page.Limit)
	// newest first
	for i := total - 1 - page.Offset(); i >= 0 && len(res) < page.Limit; i-- {
		res = append(res, orders[i])
	}
	return res, total, nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, id string, fn func(Tx) error) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	cur := e.state.Load()
	tx := newStaging(cur.account, cur.holdings)
	if err := fn(tx); err != nil {
		return err
	}
	if tx.account.Cash.IsNegative() {
		return fmt.Errorf("cash of %q would become %v: %w", id, tx.account.Cash, wealthmind.ErrInsufficientFunds)
	}
	// Abandoned requests commit nothing.
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.journal != nil {
		if err := m.journal.commit(tx.account, tx.touchedHoldings(), tx.orders); err != nil {
			return err
		}
	}
	e.state.Store(cur.apply(tx))
	return nil
}
