package wealthmind

import (
	"errors"
	"fmt"
)

// Kind classifies errors by how a client should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuth
	KindNotFound
	KindInsufficientFunds
	KindInsufficientHoldings
	KindQuoteUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInsufficientHoldings:
		return "insufficient_holdings"
	case KindQuoteUnavailable:
		return "quote_unavailable"
	default:
		return "internal"
	}
}

// Error is a sentinel error carrying a Kind.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

func newError(kind Kind, msg string) *Error { return &Error{kind: kind, msg: msg} }

var (
	ErrValidation           = newError(KindValidation, "validation failed")
	ErrInvalidQuantity      = newError(KindValidation, "quantity must be a positive integer")
	ErrInvalidSide          = newError(KindValidation, "side must be buy or sell")
	ErrInvalidSymbol        = newError(KindValidation, "symbol is required")
	ErrEmailExists          = newError(KindConflict, "an account with this email already exists")
	ErrInvalidCredentials   = newError(KindAuth, "invalid email or password")
	ErrTokenExpired         = newError(KindAuth, "token expired")
	ErrTokenMalformed       = newError(KindAuth, "token malformed")
	ErrAccountNotFound      = newError(KindNotFound, "account not found")
	ErrSymbolNotFound       = newError(KindNotFound, "symbol not found")
	ErrInsufficientFunds    = newError(KindInsufficientFunds, "insufficient funds")
	ErrInsufficientHoldings = newError(KindInsufficientHoldings, "insufficient holdings")
	ErrQuoteUnavailable     = newError(KindQuoteUnavailable, "quote unavailable")
)

// ErrConflict reports a concurrent modification detected by the store; callers may retry.
var ErrConflict = newError(KindInternal, "concurrent modification")

// KindOf returns the Kind of the first *Error found in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Errorf wraps a sentinel with a formatted context message, the sentinel
// message is appended after a colon.
func Errorf(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
