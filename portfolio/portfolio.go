// Package portfolio is the Portfolio Engine: it values the holdings of an
// account at live quotes.
//
// Valuation never fails because of the market: a holding whose quote cannot
// be served is valued at its last known price, or at its average cost when
// no price was ever seen, and flagged stale.
package portfolio

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quotes serves the market prices used for valuation.
type Quotes interface {
	GetQuotes(ctx context.Context, symbols []string) ([]wealthmind.Quote, int)
	LastKnown(symbol string) (wealthmind.Quote, bool)
}

// Unrated is the risk level of a position valued without any quote.
const Unrated wealthmind.RiskLevel = "Unrated"

// topCount is the number of top gainers and losers in Stats.
const topCount = 5

var hundred = decimal.NewFromInt(100)

// Position is a holding valued at market.
type Position struct {
	Symbol            string               `json:"symbol"`
	Name              string               `json:"name,omitempty"`
	Quantity          int64                `json:"quantity"`
	AvgCost           wealthmind.Money     `json:"avgCost"`
	CurrentPrice      wealthmind.Money     `json:"currentPrice"`
	Invested          wealthmind.Money     `json:"invested"`
	Value             wealthmind.Money     `json:"value"`
	ProfitLoss        wealthmind.Money     `json:"profitLoss"`
	ProfitLossPercent float64              `json:"profitLossPercent"`
	ChangePercent     float64              `json:"changePercent"`
	RiskLevel         wealthmind.RiskLevel `json:"riskLevel"`
	Stale             bool                 `json:"stale,omitempty"`
}

// Portfolio is the valuation of an account.
type Portfolio struct {
	AccountID         string           `json:"accountId"`
	Cash              wealthmind.Money `json:"cashBalance"`
	Invested          wealthmind.Money `json:"invested"`
	HoldingsValue     wealthmind.Money `json:"holdingsValue"`
	TotalValue        wealthmind.Money `json:"totalValue"`
	ProfitLoss        wealthmind.Money `json:"profitLoss"` // unrealized
	ProfitLossPercent float64          `json:"profitLossPercent"`
	RealizedPL        wealthmind.Money `json:"realizedProfitLoss"`
	Positions         []Position       `json:"stocks"` // ordered by symbol
	StaleCount        int              `json:"staleCount"`
	AsOf              time.Time        `json:"asOf"`
}

// Stats summarizes the performance of an account.
type Stats struct {
	CurrentValue      wealthmind.Money                          `json:"currentValue"` // market value of the holdings
	TotalValue        wealthmind.Money                          `json:"totalValue"`
	Invested          wealthmind.Money                          `json:"totalInvested"`
	ProfitLoss        wealthmind.Money                          `json:"profitLoss"` // unrealized plus realized
	Unrealized        wealthmind.Money                          `json:"unrealizedProfitLoss"`
	Realized          wealthmind.Money                          `json:"realizedProfitLoss"`
	ProfitLossPercent float64                                   `json:"profitLossPercent"`
	HoldingsCount     int                                       `json:"holdingsCount"`
	RiskAllocation    map[wealthmind.RiskLevel]wealthmind.Money `json:"riskAllocation"`
	TopGainers        []Position                                `json:"topGainers"`
	TopLosers         []Position                                `json:"topLosers"`
	StaleCount        int                                       `json:"staleCount"`
}

// Profile is the public view of an account with its valuation.
type Profile struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Email          string           `json:"email"`
	Phone          string           `json:"phone,omitempty"`
	Currency       string           `json:"currency"`
	CashBalance    wealthmind.Money `json:"cashBalance"`
	PortfolioValue wealthmind.Money `json:"portfolioValue"`
	RealizedPL     wealthmind.Money `json:"realizedProfitLoss"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Engine values accounts.
type Engine struct {
	store  ledger.Store
	quotes Quotes
	log    *zap.Logger
	now    func() time.Time
}

// New returns an Engine reading accounts from store and prices from quotes.
func New(store ledger.Store, quotes Quotes, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, quotes: quotes, log: log, now: time.Now}
}

// Portfolio returns the valuation of the account.
func (e *Engine) Portfolio(ctx context.Context, accountID string) (Portfolio, error) {
	snap, err := e.store.Snapshot(ctx, accountID)
	if err != nil {
		return Portfolio{}, err
	}
	return e.value(ctx, snap), nil
}

// value computes the portfolio of a ledger snapshot.
func (e *Engine) value(ctx context.Context, snap ledger.Snapshot) Portfolio {
	currency := snap.Account.Cash.Currency()
	zero := wealthmind.M(0, currency)
	p := Portfolio{
		AccountID:     snap.Account.ID,
		Cash:          snap.Account.Cash,
		Invested:      zero,
		HoldingsValue: zero,
		ProfitLoss:    zero,
		RealizedPL:    snap.Account.RealizedPL.In(currency),
		Positions:     make([]Position, 0, len(snap.Holdings)),
		AsOf:          e.now().UTC(),
	}

	symbols := make([]string, len(snap.Holdings))
	for i, h := range snap.Holdings {
		symbols[i] = h.Symbol
	}
	quotes := make(map[string]wealthmind.Quote, len(symbols))
	if len(symbols) > 0 {
		served, omitted := e.quotes.GetQuotes(ctx, symbols)
		for _, q := range served {
			quotes[q.Symbol] = q
		}
		if omitted > 0 {
			e.log.Warn("portfolio valued without live quotes", zap.String("account", snap.Account.ID), zap.Int("omitted", omitted))
		}
	}

	for _, h := range snap.Holdings {
		pos := e.position(h, quotes, currency)
		if pos.Stale {
			p.StaleCount++
		}
		p.Invested = p.Invested.Add(pos.Invested)
		p.HoldingsValue = p.HoldingsValue.Add(pos.Value)
		p.Positions = append(p.Positions, pos)
	}
	slices.SortFunc(p.Positions, func(a, b Position) int { return cmp.Compare(a.Symbol, b.Symbol) })

	p.TotalValue = p.Cash.Add(p.HoldingsValue)
	p.ProfitLoss = p.HoldingsValue.Sub(p.Invested)
	p.ProfitLossPercent = percent(p.ProfitLoss, p.Invested)
	return p
}

// position values h at the first usable of: the served quote, the last
// known quote, the average cost.
func (e *Engine) position(h wealthmind.Holding, quotes map[string]wealthmind.Quote, currency string) Position {
	pos := Position{
		Symbol:    h.Symbol,
		Quantity:  h.Quantity,
		AvgCost:   h.AvgCost.In(currency).Round(),
		Invested:  h.Invested().In(currency).Round(),
		RiskLevel: Unrated,
	}

	q, ok := quotes[h.Symbol]
	if !ok || !sameCurrency(q, currency) {
		q, ok = e.quotes.LastKnown(h.Symbol)
		q.Stale = true
	}
	if ok && q.Price > 0 && sameCurrency(q, currency) {
		pos.Name = q.Name
		pos.CurrentPrice = wealthmind.M(q.Price, currency).Round()
		pos.ChangePercent = q.ChangePercent
		pos.RiskLevel = q.RiskLevel
		pos.Stale = q.Stale
	} else {
		pos.CurrentPrice = pos.AvgCost
		pos.Stale = true
	}

	pos.Value = pos.CurrentPrice.Mul(h.Quantity)
	pos.ProfitLoss = pos.Value.Sub(pos.Invested)
	pos.ProfitLossPercent = percent(pos.ProfitLoss, pos.Invested)
	return pos
}

// Stats returns the performance summary of the account.
func (e *Engine) Stats(ctx context.Context, accountID string) (Stats, error) {
	p, err := e.Portfolio(ctx, accountID)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		CurrentValue:   p.HoldingsValue,
		TotalValue:     p.TotalValue,
		Invested:       p.Invested,
		Unrealized:     p.ProfitLoss,
		Realized:       p.RealizedPL,
		ProfitLoss:     p.ProfitLoss.Add(p.RealizedPL),
		HoldingsCount:  len(p.Positions),
		RiskAllocation: make(map[wealthmind.RiskLevel]wealthmind.Money),
		StaleCount:     p.StaleCount,
	}
	s.ProfitLossPercent = percent(s.ProfitLoss, s.Invested)
	for _, pos := range p.Positions {
		s.RiskAllocation[pos.RiskLevel] = s.RiskAllocation[pos.RiskLevel].Add(pos.Value)
	}

	ranked := slices.Clone(p.Positions)
	slices.SortStableFunc(ranked, func(a, b Position) int { return cmp.Compare(b.ProfitLossPercent, a.ProfitLossPercent) })
	s.TopGainers = top(ranked, Position.gaining)
	slices.Reverse(ranked)
	s.TopLosers = top(ranked, Position.losing)
	return s, nil
}

func (p Position) gaining() bool { return p.ProfitLoss.IsPositive() }
func (p Position) losing() bool  { return p.ProfitLoss.IsNegative() }

// top returns the first topCount positions of ranked that match keep.
func top(ranked []Position, keep func(Position) bool) []Position {
	res := []Position{}
	for _, p := range ranked {
		if len(res) == topCount {
			break
		}
		if keep(p) {
			res = append(res, p)
		}
	}
	return res
}

// Profile returns the public fields of the account with its total value.
func (e *Engine) Profile(ctx context.Context, accountID string) (Profile, error) {
	p, err := e.Portfolio(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	a, err := e.store.Account(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:             a.ID,
		Name:           a.Name,
		Email:          a.Email,
		Phone:          a.Phone,
		Currency:       a.Cash.Currency(),
		CashBalance:    p.Cash,
		PortfolioValue: p.TotalValue,
		RealizedPL:     p.RealizedPL,
		CreatedAt:      a.CreatedAt,
	}, nil
}

func sameCurrency(q wealthmind.Quote, currency string) bool {
	return q.Currency == "" || currency == "" || q.Currency == currency
}

// percent returns 100*pl/base rounded to 2 decimals, 0 when base is zero.
func percent(pl, base wealthmind.Money) float64 {
	return pl.Ratio(base).Mul(hundred).Round(2).InexactFloat64()
}
