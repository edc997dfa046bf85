// Package session persists the signed-in user's bearer token.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medcare-vn/medcare-mobile/internal/kvstore"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

// TokenKey is the storage key holding the session token.
const TokenKey = "session_token"

var (
	// ErrNoSession means nobody is signed in or the token has expired.
	ErrNoSession = errors.New("session: not signed in")
	// ErrEmptyToken is returned when saving a blank token.
	ErrEmptyToken = errors.New("session: empty token")
)

// Claims is what the client reads out of the token. Opaque tokens yield
// zero claims.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Store reads and writes the session token.
type Store struct {
	kv     kvstore.Store
	now    func() time.Time
	logger *logging.Logger
}

// NewStore wraps a key-value store.
func NewStore(kv kvstore.Store, logger *logging.Logger) *Store {
	if kv == nil {
		panic("session: kv store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{kv: kv, now: time.Now, logger: logger}
}

// WithClock overrides the time source used for expiry checks.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Save stores a freshly issued token.
func (s *Store) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.kv.Set(ctx, TokenKey, []byte(token)); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	claims := parseClaims(token)
	s.logger.Info("session saved", "subject", claims.Subject, "expires_at", claims.ExpiresAt)
	return nil
}

// Token returns the stored token, or ErrNoSession when absent or expired.
func (s *Store) Token(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, TokenKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("session: read: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoSession
	}
	claims := parseClaims(token)
	if !claims.ExpiresAt.IsZero() && !s.now().Before(claims.ExpiresAt) {
		s.logger.Info("session token expired", "expires_at", claims.ExpiresAt)
		return "", ErrNoSession
	}
	return token, nil
}

// Claims returns the claims of the current token.
func (s *Store) Claims(ctx context.Context) (Claims, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return Claims{}, err
	}
	return parseClaims(token), nil
}

// Clear signs the user out.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	s.logger.Info("session cleared")
	return nil
}

// parseClaims reads claims without verifying the signature; the backend is
// the only party able to verify it.
func parseClaims(token string) Claims {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}
	}
	var out Claims
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out
}
