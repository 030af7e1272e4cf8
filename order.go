package wealthmind

import (
	"encoding/json"
	"time"
)

// Order is the immutable record of an order.
//
// Price is the execution price actually applied to the account. RequestedPrice
// is the price the client submitted, kept for audit only.
type Order struct {
	ID             string
	AccountID      string
	Symbol         string
	Side           Side
	Quantity       int64
	Price          Money
	RequestedPrice Money
	Amount         Money // Price × Quantity
	RealizedPL     Money // sells only
	Status         OrderStatus
	Reason         string // rejection reason
	ExecutedAt     time.Time
}

// MarshalJSON implements the json.Marshaler interface for Order.
func (o Order) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", o.ID)
	w.Append("accountId", o.AccountID)
	w.Append("symbol", o.Symbol)
	w.Append("side", o.Side)
	w.Append("quantity", o.Quantity)
	w.Append("price", o.Price)
	if !o.RequestedPrice.IsZero() {
		w.Append("requestedPrice", o.RequestedPrice)
	}
	w.Append("amount", o.Amount)
	w.Append("currency", o.Price.Currency())
	if o.Side == Sell && o.Status == Executed {
		w.Append("realizedPL", o.RealizedPL)
	}
	w.Append("status", o.Status)
	w.Optional("reason", o.Reason)
	w.Append("executedAt", o.ExecutedAt)
	return w.MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface for Order.
func (o *Order) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID             string      `json:"id"`
		AccountID      string      `json:"accountId"`
		Symbol         string      `json:"symbol"`
		Side           Side        `json:"side"`
		Quantity       int64       `json:"quantity"`
		Price          Money       `json:"price"`
		RequestedPrice Money       `json:"requestedPrice"`
		Amount         Money       `json:"amount"`
		Currency       string      `json:"currency"`
		RealizedPL     Money       `json:"realizedPL"`
		Status         OrderStatus `json:"status"`
		Reason         string      `json:"reason"`
		ExecutedAt     time.Time   `json:"executedAt"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	*o = Order{
		ID:             temp.ID,
		AccountID:      temp.AccountID,
		Symbol:         temp.Symbol,
		Side:           temp.Side,
		Quantity:       temp.Quantity,
		Price:          temp.Price.In(temp.Currency),
		RequestedPrice: temp.RequestedPrice.In(temp.Currency),
		Amount:         temp.Amount.In(temp.Currency),
		RealizedPL:     temp.RealizedPL.In(temp.Currency),
		Status:         temp.Status,
		Reason:         temp.Reason,
		ExecutedAt:     temp.ExecutedAt,
	}
	return nil
}
