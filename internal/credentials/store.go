// Package credentials defines the persistent store for session
// credentials: the access/refresh token pair and the cached user
// profile.
package credentials

import (
	"context"

	"github.com/knowit/knowit/internal/domain"
)

// Store keys as they appear in persistent backends.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenType    = "token_type"
	KeyExpiresIn    = "expires_in"
	KeyCachedUser   = "cached_user"
)

// Store persists session credentials. Reads return the empty string
// when a value is absent.
//
// SaveTokenPair and ClearTokens must be atomic: a concurrent reader
// observes either the old pair or the new pair in full, never an
// access token from one pair alongside a refresh token from another.
type Store interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	// TokenPair reads both tokens in one atomic snapshot. It returns
	// nil when no pair is stored.
	TokenPair(ctx context.Context) (*domain.TokenPair, error)
	SaveTokenPair(ctx context.Context, pair domain.TokenPair) error
	ClearTokens(ctx context.Context) error

	CachedUser(ctx context.Context) (string, error)
	SaveCachedUser(ctx context.Context, encoded string) error
	DeleteCachedUser(ctx context.Context) error
}
