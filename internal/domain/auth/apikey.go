package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeAdmin grants access to staff-only routes.
const ScopeAdmin = "admin"

var (
	// ErrKeyNotFound is returned by Repository when no active key matches.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrUserNotFound is returned by UserRepository for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper. Only hashes are
// stored; raw keys are shown once at creation.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	KeyID  string
	Scopes []string
}

// HasScope reports whether the principal was granted scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// IsAdmin reports whether the principal may use staff routes.
func (p Principal) IsAdmin() bool {
	return p.HasScope(ScopeAdmin)
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// User is an account that owns API keys and orders.
type User struct {
	ID    string
	Name  string
	Email string
}

// UserRepository looks up account profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
