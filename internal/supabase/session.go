package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/logger"
	"golang.org/x/oauth2"
)

const (
	tablePayments = "payments"
	tableOrders   = "orders"
	tableProfiles = "profiles"
)

var (
	errNoRefreshToken = errors.New("supabase: access token expired and no refresh token is available")
	errSignedOut      = errors.New("supabase: session has ended")
)

// TokenStore holds the latest token of one signed-in user. Sessions built
// over the same store share refreshes, so a rotated refresh token is never
// presented twice. Lock is held around LoadToken and SaveToken; LoadToken
// returns nil once the user is signed out.
type TokenStore interface {
	sync.Locker
	LoadToken(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, tok *oauth2.Token) error
}

// Session is the backend seen through one signed-in user. Requests carry the
// user's access token so row-level security applies; the token is refreshed
// through GoTrue when it expires.
type Session struct {
	base *Client
	user *Client
	src  oauth2.TokenSource
}

// Session binds a single user token to the client. onRefresh, if non-nil,
// is called with every newly issued token.
func (c *Client) Session(tok *oauth2.Token, onRefresh func(*oauth2.Token)) *Session {
	return c.SessionFor(&memoryTokens{tok: tok, onRefresh: onRefresh})
}

// SessionFor binds the client to the token kept in store.
func (c *Client) SessionFor(store TokenStore) *Session {
	src := &storedSource{auth: c.Auth(), store: store}

	base := c.httpClient.Transport
	userHTTP := &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &oauth2.Transport{Source: src, Base: base},
	}

	return &Session{
		base: c,
		user: c.withHTTPClient(userHTTP),
		src:  src,
	}
}

// Token returns the current, possibly refreshed, token.
func (s *Session) Token() (*oauth2.Token, error) {
	return s.src.Token()
}

// CurrentIdentity returns (nil, nil) when the session no longer belongs to
// a signed-in user.
func (s *Session) CurrentIdentity(ctx context.Context) (*domain.Identity, error) {
	tok, err := s.src.Token()
	if err != nil {
		if errors.Is(err, errNoRefreshToken) || errors.Is(err, errSignedOut) || IsAuthError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, nil
	}

	user, err := s.base.Auth().VerifyToken(ctx, tok.AccessToken)
	if err != nil {
		if IsAuthError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	who := user.Identity()
	return &who, nil
}

type paymentRow struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Amount string `json:"amount"`
	UTR    string `json:"utr"`
	Email  string `json:"email"`
	UserID string `json:"user_id"`
}

// InsertPayment writes one payments row as the signed-in user.
func (s *Session) InsertPayment(ctx context.Context, rec domain.PaymentRecord) error {
	return s.user.Insert(ctx, tablePayments, []paymentRow{{
		Name:   rec.Name,
		Phone:  rec.Phone,
		Amount: rec.Amount,
		UTR:    rec.UTR,
		Email:  rec.Email,
		UserID: rec.UserID,
	}})
}

// ListPayments returns the user's payments, newest first.
func (s *Session) ListPayments(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error) {
	resp, err := s.user.From(tablePayments).
		Select("*").
		Eq("user_id", userID).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	var out []domain.PaymentRecord
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return out, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Session) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	resp, err := s.user.From(tableOrders).
		Select("*").
		Eq("user_id", userID).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var out []domain.Order
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return out, nil
}

// storedSource reads the token from its store on every call and refreshes
// it through GoTrue once expired. GoTrue rotates refresh tokens, so the
// refreshed token is saved back before the lock is released.
type storedSource struct {
	auth  *AuthClient
	store TokenStore
}

func (s *storedSource) Token() (*oauth2.Token, error) {
	s.store.Lock()
	defer s.store.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := s.store.LoadToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok == nil {
		return nil, errSignedOut
	}
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, errNoRefreshToken
	}

	grant, err := s.auth.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		logger.Warn("supabase: token refresh failed", "error", err)
		return nil, err
	}

	fresh := grant.Token()
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := s.store.SaveToken(ctx, fresh); err != nil {
		logger.Warn("supabase: saving refreshed token failed", "error", err)
	}
	return fresh, nil
}

// memoryTokens is a TokenStore for a token that lives only in this process.
type memoryTokens struct {
	sync.Mutex
	tok       *oauth2.Token
	onRefresh func(*oauth2.Token)
}

func (m *memoryTokens) LoadToken(context.Context) (*oauth2.Token, error) {
	return m.tok, nil
}

func (m *memoryTokens) SaveToken(_ context.Context, tok *oauth2.Token) error {
	m.tok = tok
	if m.onRefresh != nil {
		m.onRefresh(tok)
	}
	return nil
}
