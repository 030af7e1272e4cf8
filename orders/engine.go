// Package orders is the Order Execution Engine: it validates buy and sell
// orders and applies them atomically to the ledger.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/events"
	"github.com/etnz/wealthmind/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuoteSource resolves the live quote of a symbol.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (wealthmind.Quote, error)
}

// DefaultMaxAttempts bounds the retries of a ledger transaction in conflict.
const DefaultMaxAttempts = 5

// Engine places orders.
//
// The execution price is always the live quote at validation time. The price
// submitted by the client is recorded on the order for audit, it is not used.
type Engine struct {
	store       ledger.Store
	quotes      QuoteSource
	events      events.Publisher
	log         *zap.Logger
	maxAttempts int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the order event publisher, events are dropped by default.
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMaxAttempts sets the number of attempts of a conflicting transaction.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// New returns an Engine applying orders to store at quotes' prices.
func New(store ledger.Store, quotes QuoteSource, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		quotes:      quotes,
		events:      events.Nop{},
		log:         zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is an order to place.
type Request struct {
	AccountID string
	Symbol    string
	Side      wealthmind.Side
	Quantity  int64
	Price     wealthmind.Money // submitted by the client, optional
}

// validate checks the request fields, quantity first.
func (r *Request) validate() error {
	if r.Quantity <= 0 {
		return wealthmind.Errorf(wealthmind.ErrInvalidQuantity, "quantity %d", r.Quantity)
	}
	r.Symbol = wealthmind.NormalizeSymbol(r.Symbol)
	if r.Symbol == "" {
		return wealthmind.ErrInvalidSymbol
	}
	if r.Side != wealthmind.Buy && r.Side != wealthmind.Sell {
		return wealthmind.Errorf(wealthmind.ErrInvalidSide, "side %q", r.Side)
	}
	if r.Price.IsNegative() {
		return wealthmind.Errorf(wealthmind.ErrValidation, "price must be positive")
	}
	return nil
}

// PlaceOrder validates and executes r. It returns the executed order, or an
// error and no change to the account.
//
// Validation runs in order: quantity, quote, then holdings for a sell or
// funds for a buy. The two last checks run inside the ledger transaction,
// against the state the order is applied to.
func (e *Engine) PlaceOrder(ctx context.Context, r Request) (wealthmind.Order, error) {
	if err := r.validate(); err != nil {
		return wealthmind.Order{}, err
	}

	quote, err := e.quotes.GetQuote(ctx, r.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			return wealthmind.Order{}, ctx.Err()
		}
		if wealthmind.KindOf(err) != wealthmind.KindNotFound && !errors.Is(err, wealthmind.ErrQuoteUnavailable) {
			err = wealthmind.Errorf(wealthmind.ErrQuoteUnavailable, "%s: %v", r.Symbol, err)
		}
		e.reject(ctx, r, wealthmind.Quote{}, err)
		return wealthmind.Order{}, err
	}

	var order wealthmind.Order
	for attempt := 1; ; attempt++ {
		order, err = e.apply(ctx, r, quote)
		if !errors.Is(err, wealthmind.ErrConflict) || attempt >= e.maxAttempts {
			break
		}
		e.log.Debug("order conflict, retrying", zap.String("account", r.AccountID), zap.Int("attempt", attempt))
	}
	if err != nil {
		if errors.Is(err, wealthmind.ErrConflict) {
			err = fmt.Errorf("order not applied after %d attempts: %w", e.maxAttempts, err)
		}
		switch wealthmind.KindOf(err) {
		case wealthmind.KindInsufficientFunds, wealthmind.KindInsufficientHoldings, wealthmind.KindValidation:
			e.reject(ctx, r, quote, err)
		default:
			if ctx.Err() == nil {
				e.log.Error("order failed", zap.String("account", r.AccountID), zap.String("symbol", r.Symbol), zap.Error(err))
			}
		}
		return wealthmind.Order{}, err
	}

	e.log.Info("order executed",
		zap.String("order", order.ID),
		zap.String("account", order.AccountID),
		zap.String("side", order.Side.String()),
		zap.String("symbol", order.Symbol),
		zap.Int64("quantity", order.Quantity),
		zap.String("price", order.Price.Decimal().String()),
		zap.Bool("staleQuote", quote.Stale),
	)
	e.publish(ctx, order)
	return order, nil
}

// apply runs one ledger transaction.
func (e *Engine) apply(ctx context.Context, r Request, quote wealthmind.Quote) (wealthmind.Order, error) {
	var order wealthmind.Order
	err := e.store.Update(ctx, r.AccountID, func(tx ledger.Tx) error {
		account := tx.Account()
		currency := account.Cash.Currency()
		if quote.Currency != "" && currency != "" && quote.Currency != currency {
			return wealthmind.Errorf(wealthmind.ErrValidation, "%s is quoted in %s, the account holds %s", r.Symbol, quote.Currency, currency)
		}
		price := wealthmind.M(quote.Price, currency).Round()
		amount := price.Mul(r.Quantity)

		order = wealthmind.Order{
			ID:         uuid.NewString(),
			AccountID:  account.ID,
			Symbol:     r.Symbol,
			Side:       r.Side,
			Quantity:   r.Quantity,
			Price:      price,
			Amount:     amount,
			RealizedPL: wealthmind.M(0, currency),
			Status:     wealthmind.Executed,
			ExecutedAt: e.now().UTC(),
		}
		if r.Price.IsPositive() {
			order.RequestedPrice = r.Price.In(currency)
		}

		holding, held := tx.Holding(r.Symbol)
		switch r.Side {
		case wealthmind.Sell:
			if !held || holding.Quantity < r.Quantity {
				return wealthmind.Errorf(wealthmind.ErrInsufficientHoldings, "selling %d %s, holding %d", r.Quantity, r.Symbol, holding.Quantity)
			}
			next, realized := holding.Dispose(r.Quantity, price)
			order.RealizedPL = realized
			tx.SetCash(account.Cash.Add(amount))
			tx.AddRealized(realized)
			tx.PutHolding(next)
		case wealthmind.Buy:
			if account.Cash.LessThan(amount) {
				return wealthmind.Errorf(wealthmind.ErrInsufficientFunds, "buying %d %s for %v, cash is %v", r.Quantity, r.Symbol, amount, account.Cash)
			}
			holding.Symbol = r.Symbol
			tx.SetCash(account.Cash.Sub(amount))
			tx.PutHolding(holding.Acquire(r.Quantity, price))
		}
		tx.AppendOrder(order)
		return nil
	})
	return order, err
}

// reject publishes a rejected order. Rejected orders are not stored.
func (e *Engine) reject(ctx context.Context, r Request, quote wealthmind.Quote, cause error) {
	order := wealthmind.Order{
		ID:             uuid.NewString(),
		AccountID:      r.AccountID,
		Symbol:         r.Symbol,
		Side:           r.Side,
		Quantity:       r.Quantity,
		RequestedPrice: r.Price,
		Status:         wealthmind.Rejected,
		Reason:         cause.Error(),
		ExecutedAt:     e.now().UTC(),
	}
	if quote.Price > 0 {
		order.Price = quote.PriceMoney(wealthmind.DefaultCurrency)
	}
	e.log.Info("order rejected", zap.String("account", r.AccountID), zap.String("symbol", r.Symbol), zap.String("reason", order.Reason))
	e.publish(ctx, order)
}

func (e *Engine) publish(ctx context.Context, o wealthmind.Order) {
	// the order is settled, the client going away must not lose its event.
	ctx = context.WithoutCancel(ctx)
	if err := e.events.Publish(ctx, events.NewOrderEvent(o, e.now().UTC())); err != nil {
		e.log.Warn("order event not published", zap.String("order", o.ID), zap.Error(err))
	}
}

// History returns a page of the account's orders, newest first, and the total count.
func (e *Engine) History(ctx context.Context, accountID string, page ledger.Page) ([]wealthmind.Order, int, error) {
	return e.store.Orders(ctx, accountID, page)
}
