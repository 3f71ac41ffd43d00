// Package auth issues and verifies the bearer tokens that identify students.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"timed-quiz-service/internal/domain"
)

// Claims carries the student profile inside a token.
type Claims struct {
	FName string `json:"fname"`
	LName string `json:"lname"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for a student.
func (t *Tokens) Issue(fname, lname, email string) (string, error) {
	if email == "" {
		return "", errors.New("email is required")
	}
	now := t.now()
	claims := Claims{
		FName: fname,
		LName: lname,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a token and returns its claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Email == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Resolve implements app.IdentityResolver for tokens this service signs.
func (t *Tokens) Resolve(_ context.Context, token string) (domain.Identity, error) {
	claims, err := t.Parse(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}
	return domain.Identity{Name: claims.FName, Email: claims.Email}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer x" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
