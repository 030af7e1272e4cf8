package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/etnz/wealthmind"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testOrder(status wealthmind.OrderStatus) wealthmind.Order {
	return wealthmind.Order{
		ID:         "o-1",
		AccountID:  "a-1",
		Symbol:     "TCS.BO",
		Side:       wealthmind.Buy,
		Quantity:   10,
		Price:      wealthmind.M(3500, "INR"),
		Amount:     wealthmind.M(35000, "INR"),
		Status:     status,
		ExecutedAt: time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewOrderEvent(t *testing.T) {
	if e := NewOrderEvent(testOrder(wealthmind.Executed), time.Now()); e.Type != OrderExecuted {
		t.Errorf("Type = %q, want %q", e.Type, OrderExecuted)
	}
	if e := NewOrderEvent(testOrder(wealthmind.Rejected), time.Now()); e.Type != OrderRejected {
		t.Errorf("Type = %q, want %q", e.Type, OrderRejected)
	}
}

func TestMessage(t *testing.T) {
	e := NewOrderEvent(testOrder(wealthmind.Executed), time.Date(2025, time.March, 3, 10, 0, 1, 0, time.UTC))
	msg, err := Message(e)
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if string(msg.Key) != "a-1" {
		t.Errorf("Key = %q, want the account id", msg.Key)
	}
	var back struct {
		Type  string `json:"type"`
		Order struct {
			ID     string  `json:"id"`
			Price  float64 `json:"price"`
			Status string  `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(msg.Value, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Type != OrderExecuted || back.Order.ID != "o-1" || back.Order.Price != 3500 || back.Order.Status != "executed" {
		t.Errorf("Value = %s", msg.Value)
	}
}

func TestLog_Publish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := Log{Logger: zap.New(core)}
	if err := p.Publish(context.Background(), NewOrderEvent(testOrder(wealthmind.Executed), time.Now())); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage(OrderExecuted).All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["symbol"]; got != "TCS.BO" {
		t.Errorf("symbol = %v, want TCS.BO", got)
	}
}
