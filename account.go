package wealthmind

import (
	"strings"
	"time"
)

// Account is a trading account: an identity, a cash balance and the
// cumulated realized profit/loss of its sell orders.
//
// Cash is never negative. Accounts are owned by the ledger store and only
// mutated through its atomic update.
type Account struct {
	ID           string
	Name         string
	Email        string // normalized, see NormalizeEmail
	Phone        string
	PasswordHash string // opaque to the domain
	Cash         Money
	RealizedPL   Money
	CreatedAt    time.Time
}

// MarshalJSON exposes the public fields only, the password hash never leaves the process.
func (a Account) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", a.ID)
	w.Append("name", a.Name)
	w.Append("email", a.Email)
	w.Optional("phone", a.Phone)
	w.Append("balance", a.Cash)
	w.Append("currency", a.Cash.Currency())
	w.Append("createdAt", a.CreatedAt)
	return w.MarshalJSON()
}

// Holding is a share position of an account in a single symbol.
//
// A holding whose quantity drops to zero is deleted, so a stored holding
// always has a positive quantity.
type Holding struct {
	Symbol   string
	Quantity int64
	AvgCost  Money // average cost basis per share
}

// Invested returns the cost basis of the whole position.
func (h Holding) Invested() Money { return h.AvgCost.Mul(h.Quantity) }

// Acquire returns the holding after buying quantity shares at price. The
// average cost becomes the weighted average of the old and new lots.
func (h Holding) Acquire(quantity int64, price Money) Holding {
	total := h.Quantity + quantity
	if total == 0 {
		return Holding{Symbol: h.Symbol}
	}
	cost := h.Invested().Add(price.Mul(quantity))
	return Holding{
		Symbol:   h.Symbol,
		Quantity: total,
		AvgCost:  cost.Div(total).RoundTo(4),
	}
}

// Dispose returns the holding after selling quantity shares at price,
// and the realized profit/loss of the sale. The average cost is unchanged.
func (h Holding) Dispose(quantity int64, price Money) (Holding, Money) {
	realized := price.Sub(h.AvgCost).Mul(quantity).Round()
	return Holding{
		Symbol:   h.Symbol,
		Quantity: h.Quantity - quantity,
		AvgCost:  h.AvgCost,
	}, realized
}

// NormalizeEmail returns the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
