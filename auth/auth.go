// Package auth registers and authenticates account holders and resolves
// bearer tokens to account ids.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/etnz/wealthmind/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify returns nil if password matches hash.
	Verify(hash, password string) error
}

// Signer issues and verifies bearer tokens bound to an account id.
type Signer interface {
	Sign(accountID string, now time.Time) (string, error)
	// Verify returns the account id of a valid token. Errors wrap
	// wealthmind.ErrTokenExpired or wealthmind.ErrTokenMalformed.
	Verify(token string, now time.Time) (string, error)
}

// Password length bounds, bcrypt ignores nothing but refuses more than 72 bytes.
const (
	minPasswordLength = 6
	maxPasswordLength = 72
)

// Service is the Authentication Service.
type Service struct {
	store  ledger.Store
	hasher Hasher
	signer Signer
	seed   wealthmind.Money // opening balance of new accounts
	log    *zap.Logger
	now    func() time.Time
}

// New returns a Service creating accounts in store with seed cash.
func New(store ledger.Store, hasher Hasher, signer Signer, seed wealthmind.Money, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, hasher: hasher, signer: signer, seed: seed, log: log, now: time.Now}
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Validate checks the form, it returns an error wrapping wealthmind.ErrValidation.
func (r RegisterRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.Phone) == "" {
		missing = append(missing, "phone")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return wealthmind.Errorf(wealthmind.ErrValidation, "missing %s", strings.Join(missing, ", "))
	}
	if !validEmail(r.Email) {
		return wealthmind.Errorf(wealthmind.ErrValidation, "invalid email %q", r.Email)
	}
	if len(r.Password) < minPasswordLength {
		return wealthmind.Errorf(wealthmind.ErrValidation, "password must be at least %d characters", minPasswordLength)
	}
	if len(r.Password) > maxPasswordLength {
		return wealthmind.Errorf(wealthmind.ErrValidation, "password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}

// validEmail accepts one '@' between non-empty parts, the domain having a dot.
func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") || strings.ContainsAny(email, " \t") {
		return false
	}
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// Session is the outcome of a successful registration or login.
type Session struct {
	Account wealthmind.Account
	Token   string
}

// Register creates an account seeded with the opening balance and opens a session.
func (s *Service) Register(ctx context.Context, r RegisterRequest) (Session, error) {
	if err := r.Validate(); err != nil {
		return Session{}, err
	}
	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return Session{}, fmt.Errorf("could not hash password: %w", err)
	}
	account := wealthmind.Account{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(r.Name),
		Email:        wealthmind.NormalizeEmail(r.Email),
		Phone:        strings.TrimSpace(r.Phone),
		PasswordHash: hash,
		Cash:         s.seed,
		RealizedPL:   wealthmind.M(0, s.seed.Currency()),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return Session{}, err
	}
	token, err := s.signer.Sign(account.ID, s.now())
	if err != nil {
		return Session{}, fmt.Errorf("could not sign token: %w", err)
	}
	s.log.Info("account registered", zap.String("account", account.ID))
	return Session{Account: account, Token: token}, nil
}

// Login opens a session. Unknown emails and wrong passwords are not told apart.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, wealthmind.Errorf(wealthmind.ErrValidation, "email and password are required")
	}
	account, err := s.store.AccountByEmail(ctx, email)
	if errors.Is(err, wealthmind.ErrAccountNotFound) {
		return Session{}, wealthmind.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		return Session{}, wealthmind.ErrInvalidCredentials
	}
	token, err := s.signer.Sign(account.ID, s.now())
	if err != nil {
		return Session{}, fmt.Errorf("could not sign token: %w", err)
	}
	return Session{Account: account, Token: token}, nil
}

// Validate resolves a bearer token to its account id.
func (s *Service) Validate(token string) (string, error) {
	if token == "" {
		return "", wealthmind.Errorf(wealthmind.ErrTokenMalformed, "no token")
	}
	return s.signer.Verify(token, s.now())
}
