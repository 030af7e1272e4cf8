package wealthmind

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// RiskLevel is a coarse volatility classification of a security.
type RiskLevel string

const (
	Low    RiskLevel = "Low"
	Medium RiskLevel = "Medium"
	High   RiskLevel = "High"
)

// ClassifyRisk derives the risk level from the magnitude of the daily change
// in percent: below 1% is Low, below 3% is Medium, anything else is High.
func ClassifyRisk(changePercent float64) RiskLevel {
	c := math.Abs(changePercent)
	switch {
	case math.IsNaN(c):
		return High
	case c < 1:
		return Low
	case c < 3:
		return Medium
	default:
		return High
	}
}

// ChangePercent returns the change in percent of the previous close, that is
// price - change. It returns 0 when the previous close is not positive.
func ChangePercent(price, change float64) float64 {
	previous := price - change
	if previous <= 0 {
		return 0
	}
	return change / previous * 100
}

// Quote is a market quote of a single symbol.
//
// Quotes are replaced wholesale, never partially updated.
type Quote struct {
	Symbol        string
	Name          string
	Price         float64
	Change        float64
	ChangePercent float64
	RiskLevel     RiskLevel
	Currency      string
	FetchedAt     time.Time
	Stale         bool // served from cache after a failed refresh
}

// Classified returns a copy of q with ChangePercent (if missing) and RiskLevel derived.
func (q Quote) Classified() Quote {
	if q.ChangePercent == 0 && q.Change != 0 {
		q.ChangePercent = ChangePercent(q.Price, q.Change)
	}
	q.RiskLevel = ClassifyRisk(q.ChangePercent)
	return q
}

// PriceMoney returns the quote price as Money rounded to the currency fraction.
func (q Quote) PriceMoney(currency string) Money {
	if q.Currency != "" {
		currency = q.Currency
	}
	return M(q.Price, currency).Round()
}

// Age returns how old the quote is at now.
func (q Quote) Age(now time.Time) time.Duration { return now.Sub(q.FetchedAt) }

// MarshalJSON implements the json.Marshaler interface for Quote.
func (q Quote) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("symbol", q.Symbol)
	w.Optional("name", q.Name)
	w.Append("price", round2(q.Price))
	w.Append("change", round2(q.Change))
	w.Append("changePercent", round2(q.ChangePercent))
	w.Append("riskLevel", q.RiskLevel)
	w.Optional("currency", q.Currency)
	w.Append("fetchedAt", q.FetchedAt)
	w.Optional("stale", q.Stale)
	return w.MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface for Quote.
func (q *Quote) UnmarshalJSON(data []byte) error {
	type plain struct {
		Symbol        string    `json:"symbol"`
		Name          string    `json:"name"`
		Price         float64   `json:"price"`
		Change        float64   `json:"change"`
		ChangePercent float64   `json:"changePercent"`
		RiskLevel     RiskLevel `json:"riskLevel"`
		Currency      string    `json:"currency"`
		FetchedAt     time.Time `json:"fetchedAt"`
		Stale         bool      `json:"stale"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*q = Quote(p)
	return nil
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// Stock describes a tradeable symbol, as returned by searches.
type Stock struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
	Currency string `json:"currency,omitempty"`
	Sector   string `json:"sector,omitempty"`
}

// NormalizeSymbol returns the canonical form of a ticker symbol, e.g. "tcs.bo" -> "TCS.BO".
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
