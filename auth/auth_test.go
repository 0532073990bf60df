package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", 3*time.Hour, nil)
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour, nil)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestManager_IssueVerify(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	token, exp, err := m.Issue("DOEJOH", "jdoe")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(3*time.Hour), exp, time.Minute)

	claims, err := m.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "DOEJOH", claims.UserID)
	assert.Equal(t, "jdoe", claims.Username)
	assert.NotEmpty(t, claims.ID)
}

func TestManager_RejectsBadTokens(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, _ := NewManager("other-secret", time.Hour, nil)
		token, _, _ := other.Issue("DOEJOH", "jdoe")
		_, err := m.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past, _ := NewManager("test-secret", time.Hour, nil)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, _ := past.Issue("DOEJOH", "jdoe")
		_, err := m.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestManager_Revoke(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	token, _, err := m.Issue("DOEJOH", "jdoe")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, token))

	_, err = m.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrRevoked)

	other, _, _ := m.Issue("SMIJAN", "jsmith")
	_, err = m.Verify(ctx, other)
	assert.NoError(t, err)

	assert.ErrorIs(t, m.Revoke(ctx, "junk"), ErrInvalidToken)
}

func TestMemoryBlacklist_Expires(t *testing.T) {
	b := NewMemoryBlacklist()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, b.Add(ctx, "a", now.Add(time.Minute)))
	ok, _ := b.Contains(ctx, "a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = b.Contains(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, b.Add(ctx, "b", now.Add(-time.Second)))
	require.NoError(t, b.Add(ctx, "c", now.Add(time.Hour)))
	assert.Equal(t, 1, b.Len(), "expired tokens are not stored")
	ok, _ = b.Contains(ctx, "b")
	assert.False(t, ok)

	require.NoError(t, b.Add(ctx, "d", now.Add(time.Minute)))
	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Add(ctx, "e", now.Add(time.Minute)))
	assert.Equal(t, 2, b.Len(), "adding prunes expired entries")
	ok, _ = b.Contains(ctx, "c")
	assert.True(t, ok)
}

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) Set(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.keys[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisBlacklist(t *testing.T) {
	ctx := context.Background()
	client := &fakeRedis{keys: make(map[string]time.Duration)}
	b := NewRedisBlacklist(client, "morpion:revoked:")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Add(ctx, "tok", now.Add(time.Hour)))
	require.Len(t, client.keys, 1)
	for key, ttl := range client.keys {
		assert.Contains(t, key, "morpion:revoked:")
		assert.NotContains(t, key, "tok")
		assert.Equal(t, time.Hour, ttl)
	}

	ok, err := b.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Contains(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Add(ctx, "old", now.Add(-time.Minute)))
	assert.Len(t, client.keys, 1, "already expired tokens are not stored")

	client.err = errors.New("connection refused")
	_, err = b.Contains(ctx, "tok")
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	m := newTestManager(t)
	token, _, _ := m.Issue("DOEJOH", "jdoe")

	var seen *Claims
	handler := Require(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
		raw, _ := TokenFrom(r.Context())
		assert.Equal(t, token, raw)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/games", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "DOEJOH", seen.UserID)
}
