package auth

import (
	"errors"
	"time"

	"github.com/etnz/wealthmind"
	"github.com/golang-jwt/jwt/v5"
)

// JWTSigner issues HS256 tokens whose subject is the account id.
//
// Tokens are stateless: they cannot be revoked before they expire.
type JWTSigner struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewJWTSigner returns a signer with a shared secret and a token lifetime.
func NewJWTSigner(secret string, ttl time.Duration) *JWTSigner {
	return &JWTSigner{secret: []byte(secret), ttl: ttl, issuer: "wealthmind"}
}

// Sign implements Signer.
func (s *JWTSigner) Sign(accountID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify implements Signer.
func (s *JWTSigner) Verify(token string, now time.Time) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", wealthmind.ErrTokenExpired
	case err != nil:
		return "", wealthmind.Errorf(wealthmind.ErrTokenMalformed, "%v", err)
	case claims.Subject == "":
		return "", wealthmind.Errorf(wealthmind.ErrTokenMalformed, "no subject")
	}
	return claims.Subject, nil
}
