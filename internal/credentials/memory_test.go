package credentials

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowit/knowit/internal/domain"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access, "empty store should report no access token")

	pair := domain.TokenPair{
		AccessToken:      "acc-1",
		RefreshToken:     "ref-1",
		TokenType:        "Bearer",
		ExpiresInSeconds: 900,
	}
	require.NoError(t, store.SaveTokenPair(ctx, pair))

	got, err := store.TokenPair(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pair, *got)

	require.NoError(t, store.ClearTokens(ctx))
	got, err = store.TokenPair(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCachedUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.SaveCachedUser(ctx, `{"id":"u1"}`))
	user, err := store.CachedUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"u1"}`, user)

	require.NoError(t, store.DeleteCachedUser(ctx))
	user, err = store.CachedUser(ctx)
	require.NoError(t, err)
	assert.Empty(t, user)
}

// Writers alternate between two complete pairs while readers snapshot
// the store; a reader must never see the access token of one pair next
// to the refresh token of the other.
func TestMemoryPairIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	pairs := []domain.TokenPair{
		{AccessToken: "acc-a", RefreshToken: "ref-a"},
		{AccessToken: "acc-b", RefreshToken: "ref-b"},
	}
	require.NoError(t, store.SaveTokenPair(ctx, pairs[0]))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = store.SaveTokenPair(ctx, pairs[i%2])
		}
	}()

	var mismatch bool
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			got, err := store.TokenPair(ctx)
			if err != nil || got == nil {
				mismatch = true
				return
			}
			if got.AccessToken == "acc-a" && got.RefreshToken != "ref-a" {
				mismatch = true
				return
			}
			if got.AccessToken == "acc-b" && got.RefreshToken != "ref-b" {
				mismatch = true
				return
			}
		}
	}()

	wg.Wait()
	assert.False(t, mismatch, "observed a mixed token pair")
}
