package freshbooks

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisTokenStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTokenStore(client)
}

func TestRedisTokenStoreRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded.AccessToken)

	expires := time.Now().Add(12 * time.Hour).Truncate(time.Second)
	require.NoError(t, store.Save(ctx, Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expires,
	}))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", loaded.AccessToken)
	require.Equal(t, "refresh-1", loaded.RefreshToken)
	require.True(t, loaded.ExpiresAt.Equal(expires))
}

func TestTokenExpiryIncludesSkew(t *testing.T) {
	now := time.Now()
	token := Token{AccessToken: "a", ExpiresAt: now.Add(time.Minute)}
	require.True(t, token.Expired(now), "tokens inside the skew window count as expired")

	token.ExpiresAt = now.Add(time.Hour)
	require.False(t, token.Expired(now))

	require.True(t, Token{}.Expired(now), "missing token is always expired")
}

func TestTokenManagerRefreshesExpiredToken(t *testing.T) {
	var tokenHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenHits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":43200}`))
	}))
	defer server.Close()

	store := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Token{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}))

	manager := NewTokenManager(store, server.Client(), server.URL, "cid", "secret", slog.Default())

	access, err := manager.AccessToken(ctx, false)
	require.NoError(t, err)
	require.Equal(t, "new-access", access)
	require.Equal(t, 1, tokenHits)

	// The replacement pair was stored before the access token was handed out.
	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "new-refresh", saved.RefreshToken)

	// A subsequent call uses the fresh token without another refresh.
	access, err = manager.AccessToken(ctx, false)
	require.NoError(t, err)
	require.Equal(t, "new-access", access)
	require.Equal(t, 1, tokenHits)
}

func TestTokenManagerInvalidGrantRequiresReauth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	store := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Token{
		AccessToken:  "old",
		RefreshToken: "burned",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}))

	manager := NewTokenManager(store, server.Client(), server.URL, "cid", "secret", slog.Default())

	_, err := manager.AccessToken(ctx, false)
	require.ErrorIs(t, err, ErrReauthRequired)
}

func TestTokenManagerWithoutRefreshToken(t *testing.T) {
	store := newRedisStore(t)
	manager := NewTokenManager(store, http.DefaultClient, "http://unused.example", "cid", "secret", slog.Default())

	_, err := manager.AccessToken(context.Background(), false)
	require.ErrorIs(t, err, ErrReauthRequired)
}
