package wealthmind

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide parses "buy" or "sell", case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q: %w", s, ErrInvalidSide)
	}
}

func (s Side) String() string { return string(s) }

// UnmarshalJSON accepts any casing, e.g. "BUY".
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	side, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// OrderStatus is the outcome of an order.
type OrderStatus string

const (
	Executed OrderStatus = "executed"
	Rejected OrderStatus = "rejected"
)
