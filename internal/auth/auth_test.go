package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testConfig() *config.AuthConfig {
	return &config.AuthConfig{
		SessionSecret: "test-secret",
		CookieName:    "investwise_session",
		CookieMaxAge:  3600,
	}
}

func testAuthSession() *domain.AuthSession {
	return &domain.AuthSession{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		Identity:     domain.Identity{UserID: "u1", Email: "a@b.com", DisplayName: "Asha"},
	}
}

// signIn creates a session and returns the cookie the browser would send back.
func signIn(t *testing.T, m *Manager) (*Session, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	sess, err := m.Create(context.Background(), rec, testAuthSession())
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return sess, cookies[0]
}

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager(testConfig(), NewMemoryStore())
	sess, cookie := signIn(t, m)

	assert.Equal(t, "investwise_session", cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.NotContains(t, cookie.Value, "access")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	got := m.GetSession(req)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "Asha", got.Identity().DisplayName)
	assert.Equal(t, "refresh", got.Token().RefreshToken)
}

func TestManager_TamperedCookie(t *testing.T) {
	m := NewManager(testConfig(), NewMemoryStore())
	_, cookie := signIn(t, m)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value + "x"})
	assert.Nil(t, m.GetSession(req))

	other := NewManager(&config.AuthConfig{SessionSecret: "other", CookieName: "investwise_session"}, m.store)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	assert.Nil(t, other.GetSession(req))
}

func TestManager_ExpiredSessionEnds(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(testConfig(), store)
	sess, cookie := signIn(t, m)

	var ended []string
	m.OnEnd(func(id string) { ended = append(ended, id) })

	expired := *sess
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(context.Background(), &expired))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	assert.Nil(t, m.GetSession(req))
	assert.Equal(t, []string{sess.ID}, ended)
}

func TestManager_Destroy(t *testing.T) {
	m := NewManager(testConfig(), NewMemoryStore())
	sess, cookie := signIn(t, m)

	var ended string
	m.OnEnd(func(id string) { ended = id })

	req := httptest.NewRequest(http.MethodPost, "/sign-out", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	got := m.Destroy(rec, req)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, ended)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
	assert.Nil(t, m.GetSession(req))
}

func TestManager_UpdateTokens(t *testing.T) {
	m := NewManager(testConfig(), NewMemoryStore())
	sess, _ := signIn(t, m)

	expiry := time.Now().Add(2 * time.Hour)
	require.NoError(t, m.UpdateTokens(context.Background(), sess.ID, &oauth2.Token{AccessToken: "new", RefreshToken: "r2", Expiry: expiry}))

	got, err := m.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.WithinDuration(t, expiry, got.TokenExpiry, time.Second)
}

func TestManager_TokensSharedPerSession(t *testing.T) {
	m := NewManager(testConfig(), NewMemoryStore())
	sess, _ := signIn(t, m)
	ctx := context.Background()

	a, b := m.Tokens(sess.ID), m.Tokens(sess.ID)
	assert.Same(t, a.Mutex, b.Mutex)

	expiry := time.Now().Add(time.Hour)
	a.Lock()
	require.NoError(t, a.SaveToken(ctx, &oauth2.Token{AccessToken: "a2", RefreshToken: "r2", Expiry: expiry}))
	a.Unlock()

	tok, err := b.LoadToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, "r2", tok.RefreshToken)

	require.NoError(t, m.store.Delete(ctx, sess.ID))
	m.ended(sess.ID)
	tok, err = b.LoadToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.NotSame(t, a.Mutex, m.Tokens(sess.ID).Mutex)
}

func TestRequireAuth(t *testing.T) {
	m := NewManager(testConfig(), NewMemoryStore())
	_, cookie := signIn(t, m)

	var seen *Session
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		path       string
		withCookie bool
		wantStatus int
	}{
		{"api without session", "/api/me", false, http.StatusUnauthorized},
		{"page without session", "/dashboard", false, http.StatusSeeOther},
		{"with session", "/api/me", true, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.withCookie {
				req.AddCookie(cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.withCookie, seen != nil)
		})
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Save(ctx, &Session{ID: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Save(ctx, &Session{ID: "live", ExpiresAt: now.Add(time.Hour)}))

	ids, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	got, _ := store.Get(ctx, "live")
	assert.NotNil(t, got)
	got, _ = store.Get(ctx, "old")
	assert.Nil(t, got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client)
	ctx := context.Background()

	sess := &Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Save(ctx, sess))
	assert.True(t, mr.Exists(redisKeyPrefix+"s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)

	mr.FastForward(2 * time.Minute)
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	_, err := NewRedisStore(client).Get(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
