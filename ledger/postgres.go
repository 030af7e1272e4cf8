package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Postgres is a Store backed by a PostgreSQL database.
//
// Update runs in a SERIALIZABLE transaction that locks the account row, so
// updates of the same account queue on the row lock.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Store using pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	// without arguments pgx uses the simple protocol, which accepts several statements.
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("could not migrate ledger schema: %w", err)
	}
	return nil
}

// Postgres error codes.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapError translates database errors into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return wealthmind.ErrAccountNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return wealthmind.ErrEmailExists
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w", pgErr.Message, wealthmind.ErrConflict)
		}
	}
	return err
}

// CreateAccount implements Store.
func (p *Postgres) CreateAccount(ctx context.Context, a wealthmind.Account) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, email, phone, password_hash, currency, cash, realized_pl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, 0, $8)`,
		a.ID, a.Name, wealthmind.NormalizeEmail(a.Email), a.Phone, a.PasswordHash,
		a.Cash.Currency(), a.Cash.Decimal().String(), a.CreatedAt)
	return mapError(err)
}

const selectAccount = `SELECT id, name, email, phone, password_hash, currency, cash::text, realized_pl::text, created_at FROM accounts`

// querier is the subset shared by the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanAccount(row pgx.Row) (wealthmind.Account, error) {
	var (
		a                  wealthmind.Account
		currency, cash, pl string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &currency, &cash, &pl, &a.CreatedAt); err != nil {
		return a, mapError(err)
	}
	var err error
	if a.Cash, err = wealthmind.ParseMoney(cash, currency); err != nil {
		return a, err
	}
	if a.RealizedPL, err = wealthmind.ParseMoney(pl, currency); err != nil {
		return a, err
	}
	return a, nil
}

// Account implements Store.
func (p *Postgres) Account(ctx context.Context, id string) (wealthmind.Account, error) {
	return scanAccount(p.pool.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
}

// AccountByEmail implements Store.
func (p *Postgres) AccountByEmail(ctx context.Context, email string) (wealthmind.Account, error) {
	return scanAccount(p.pool.QueryRow(ctx, selectAccount+` WHERE email = $1`, wealthmind.NormalizeEmail(email)))
}

func loadHoldings(ctx context.Context, q querier, id, currency string) ([]wealthmind.Holding, error) {
	rows, err := q.Query(ctx, `SELECT symbol, quantity, avg_cost::text FROM holdings WHERE account_id = $1 ORDER BY symbol`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]wealthmind.Holding, 0)
	for rows.Next() {
		var (
			h   wealthmind.Holding
			avg string
		)
		if err := rows.Scan(&h.Symbol, &h.Quantity, &avg); err != nil {
			return nil, err
		}
		if h.AvgCost, err = wealthmind.ParseMoney(avg, currency); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Snapshot implements Store.
func (p *Postgres) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback(ctx)

	a, err := scanAccount(tx.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
	if err != nil {
		return Snapshot{}, err
	}
	holdings, err := loadHoldings(ctx, tx, id, a.Cash.Currency())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Account: a, Holdings: holdings}, tx.Commit(ctx)
}

// Orders implements Store.
func (p *Postgres) Orders(ctx context.Context, id string, page Page) ([]wealthmind.Order, int, error) {
	page = page.Normalize()
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE account_id = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, account_id, symbol, side, quantity, price::text, requested_price::text, amount::text,
		       realized_pl::text, currency, status, reason, executed_at
		FROM orders WHERE account_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		id, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]wealthmind.Order, 0, page.Limit)
	for rows.Next() {
		var (
			o                                  wealthmind.Order
			price, requested, amount, realized string
			currency                           string
			side, status                       string
		)
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &side, &o.Quantity, &price, &requested, &amount,
			&realized, &currency, &status, &o.Reason, &o.ExecutedAt); err != nil {
			return nil, 0, err
		}
		o.Side = wealthmind.Side(side)
		o.Status = wealthmind.OrderStatus(status)
		for _, f := range []struct {
			dst *wealthmind.Money
			src string
		}{{&o.Price, price}, {&o.RequestedPrice, requested}, {&o.Amount, amount}, {&o.RealizedPL, realized}} {
			if *f.dst, err = wealthmind.ParseMoney(f.src, currency); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, id string, fn func(Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAccount(tx.QueryRow(ctx, selectAccount+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	list, err := loadHoldings(ctx, tx, id, a.Cash.Currency())
	if err != nil {
		return mapError(err)
	}
	holdings := make(map[string]wealthmind.Holding, len(list))
	for _, h := range list {
		holdings[h.Symbol] = h
	}

	st := newStaging(a, holdings)
	if err := fn(st); err != nil {
		return err
	}
	if st.account.Cash.IsNegative() {
		return fmt.Errorf("cash of %q would become %v: %w", id, st.account.Cash, wealthmind.ErrInsufficientFunds)
	}

	batch := &pgx.Batch{}
	batch.Queue(`UPDATE accounts SET cash = $2::numeric, realized_pl = $3::numeric WHERE id = $1`,
		id, st.account.Cash.Decimal().String(), st.account.RealizedPL.Decimal().String())
	for _, h := range st.touchedHoldings() {
		if h.Quantity == 0 {
			batch.Queue(`DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`, id, h.Symbol)
			continue
		}
		batch.Queue(`
			INSERT INTO holdings (account_id, symbol, quantity, avg_cost) VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (account_id, symbol) DO UPDATE SET quantity = EXCLUDED.quantity, avg_cost = EXCLUDED.avg_cost`,
			id, h.Symbol, h.Quantity, h.AvgCost.Decimal().String())
	}
	for _, o := range st.orders {
		batch.Queue(`
			INSERT INTO orders (id, account_id, symbol, side, quantity, price, requested_price, amount, realized_pl, currency, status, reason, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13)`,
			o.ID, id, o.Symbol, string(o.Side), o.Quantity, numeric(o.Price), numeric(o.RequestedPrice),
			numeric(o.Amount), numeric(o.RealizedPL), o.Price.Currency(), string(o.Status), o.Reason, o.ExecutedAt.UTC().Truncate(time.Microsecond))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func numeric(m wealthmind.Money) string {
	return m.Decimal().Round(4).String()
}
