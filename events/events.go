// Package events publishes order outcomes to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types.
const (
	OrderExecuted = "order.executed"
	OrderRejected = "order.rejected"
)

// OrderEvent reports the outcome of an order placement.
type OrderEvent struct {
	Type  string           `json:"type"`
	Order wealthmind.Order `json:"order"`
	At    time.Time        `json:"at"`
}

// NewOrderEvent returns the event describing o.
func NewOrderEvent(o wealthmind.Order, at time.Time) OrderEvent {
	typ := OrderExecuted
	if o.Status == wealthmind.Rejected {
		typ = OrderRejected
	}
	return OrderEvent{Type: typ, Order: o, At: at}
}

// Publisher delivers order events. Publication is best effort: the ledger,
// not the event stream, is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) error { return nil }
func (Nop) Close() error                              { return nil }

// Log writes events to a logger.
type Log struct{ Logger *zap.Logger }

// Publish implements Publisher.
func (l Log) Publish(_ context.Context, e OrderEvent) error {
	l.Logger.Info(e.Type,
		zap.String("order", e.Order.ID),
		zap.String("account", e.Order.AccountID),
		zap.String("symbol", e.Order.Symbol),
		zap.String("side", e.Order.Side.String()),
		zap.Int64("quantity", e.Order.Quantity),
		zap.String("price", e.Order.Price.Decimal().String()),
		zap.String("reason", e.Order.Reason),
	)
	return nil
}

// Close implements Publisher.
func (Log) Close() error { return nil }

// Kafka publishes events as JSON messages keyed by account id, so that the
// events of an account are delivered in order.
type Kafka struct {
	w   *kafka.Writer
	log *zap.Logger
}

// NewKafka returns a publisher writing to topic on brokers. Writes are
// asynchronous, failures are logged.
func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	k := &Kafka{log: log}
	k.w = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("order events lost", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return k
}

// Message returns the kafka message carrying e.
func Message(e OrderEvent) (kafka.Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Order.AccountID),
		Value: b,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, e OrderEvent) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, msg)
}

// Close flushes pending messages.
func (k *Kafka) Close() error { return k.w.Close() }
