package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/httputil"
	"github.com/ignite/investwise/internal/pkg/logger"
	"golang.org/x/oauth2"
)

// ErrStoreUnavailable is returned when the session backend cannot be reached.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Session represents a signed-in browser session. The provider tokens stay
// server-side; the cookie only carries the signed session id.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Token returns the provider token for this session.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
	}
}

// Identity returns the identity cached at sign-in. Submissions re-resolve
// it through the provider; this copy is for display.
func (s *Session) Identity() domain.Identity {
	name := s.Name
	if name == "" {
		name = domain.DefaultDisplayName
	}
	return domain.Identity{UserID: s.UserID, Email: s.Email, Phone: s.Phone, DisplayName: name}
}

// Manager issues, resolves and ends browser sessions.
type Manager struct {
	config *config.AuthConfig
	store  Store
	secret []byte

	mu    sync.RWMutex
	onEnd []func(sessionID string)

	tokenMu    sync.Mutex
	tokenLocks map[string]*sync.Mutex
}

// NewManager creates a session manager. Without a configured secret a
// random one is generated, which invalidates cookies on restart.
func NewManager(cfg *config.AuthConfig, store Store) *Manager {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		logger.Warn("auth: no session secret configured, using an ephemeral one")
	}
	return &Manager{config: cfg, store: store, secret: secret, tokenLocks: make(map[string]*sync.Mutex)}
}

// OnEnd registers a callback run after a session is signed out or expires.
func (m *Manager) OnEnd(fn func(sessionID string)) {
	m.mu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.mu.Unlock()
}

func (m *Manager) ended(id string) {
	m.tokenMu.Lock()
	delete(m.tokenLocks, id)
	m.tokenMu.Unlock()

	m.mu.RLock()
	fns := append([]func(string){}, m.onEnd...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(id)
	}
}

// Create stores a session for as and sets the cookie.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, as *domain.AuthSession) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       as.Identity.UserID,
		Email:        as.Identity.Email,
		Name:         as.Identity.DisplayName,
		Phone:        as.Identity.Phone,
		AccessToken:  as.AccessToken,
		RefreshToken: as.RefreshToken,
		TokenExpiry:  as.ExpiresAt,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.config.SessionTTL()),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    m.sign(sess.ID),
		Path:     "/",
		MaxAge:   m.config.CookieMaxAge,
		HttpOnly: true,
		Secure:   m.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info("auth: session created", "user_id", sess.UserID, "email", sess.Email)
	return sess, nil
}

// GetSession returns the session for the current request, or nil if not
// authenticated.
func (m *Manager) GetSession(r *http.Request) *Session {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil {
		return nil
	}
	id, ok := m.verify(cookie.Value)
	if !ok {
		return nil
	}

	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		logger.Error("auth: session lookup failed", "error", err)
		return nil
	}
	if sess == nil {
		return nil
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = m.store.Delete(r.Context(), id)
		m.ended(id)
		return nil
	}
	return sess
}

// UpdateTokens persists a refreshed provider token. A session that has
// already ended is left alone.
func (m *Manager) UpdateTokens(ctx context.Context, sessionID string, tok *oauth2.Token) error {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	sess.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		sess.RefreshToken = tok.RefreshToken
	}
	sess.TokenExpiry = tok.Expiry
	return m.store.Save(ctx, sess)
}

// SessionTokens is the provider token of one stored session. Every value
// for the same session shares one lock, so concurrent requests refresh the
// token once and all see the rotated refresh token.
type SessionTokens struct {
	*sync.Mutex
	m  *Manager
	id string
}

// Tokens returns the token handle for sessionID.
func (m *Manager) Tokens(sessionID string) *SessionTokens {
	m.tokenMu.Lock()
	mu, ok := m.tokenLocks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.tokenLocks[sessionID] = mu
	}
	m.tokenMu.Unlock()
	return &SessionTokens{Mutex: mu, m: m, id: sessionID}
}

// LoadToken returns the stored token, or nil once the session has ended.
func (t *SessionTokens) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	sess, err := t.m.store.Get(ctx, t.id)
	if err != nil {
		return nil, err
	}
	if sess == nil || time.Now().After(sess.ExpiresAt) {
		return nil, nil
	}
	return sess.Token(), nil
}

// SaveToken stores a refreshed token.
func (t *SessionTokens) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	return t.m.UpdateTokens(ctx, t.id, tok)
}

// Destroy ends the request's session, clears the cookie and returns the
// session that was ended, if any.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) *Session {
	sess := m.GetSession(r)
	if sess != nil {
		if err := m.store.Delete(r.Context(), sess.ID); err != nil {
			logger.Warn("auth: session delete failed", "error", err)
		}
		m.ended(sess.ID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:   m.config.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return sess
}

type contextKey struct{}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session attached by RequireAuth.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

// RequireAuth is middleware that requires a session. API requests get a
// JSON 401; page requests are redirected to the sign-in page.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.GetSession(r)
		if sess == nil {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				httputil.Unauthorized(w, "You are not logged in.")
				return
			}
			http.Redirect(w, r, "/sign-in", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// CleanupExpiredSessions sweeps expired sessions every interval until ctx
// is done. sweep hooks run after each pass.
func (m *Manager) CleanupExpiredSessions(ctx context.Context, interval time.Duration, sweep ...func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ids, err := m.store.DeleteExpired(ctx, time.Now())
				if err != nil {
					logger.Warn("auth: session cleanup failed", "error", err)
				}
				for _, id := range ids {
					m.ended(id)
				}
				for _, fn := range sweep {
					fn()
				}
			}
		}
	}()
}

// sign returns "<id>.<mac>".
func (m *Manager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	want := m.sign(id)
	if !hmac.Equal([]byte(want[len(id)+1:]), []byte(sig)) {
		return "", false
	}
	return id, true
}
