package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ignite/investwise/internal/domain"
	"golang.org/x/oauth2"
)

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles GoTrue operations.
type AuthClient struct {
	client *Client
}

// AuthResponse is the token grant returned by sign-in and refresh.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Token converts the grant to an oauth2 token.
func (r *AuthResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		tok.Expiry = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok
}

// User is a GoTrue user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	Aud          string         `json:"aud"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Identity maps the user to the portal's identity. The display name comes
// from user_metadata.name and falls back to DefaultDisplayName.
func (u *User) Identity() domain.Identity {
	who := domain.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Phone:       u.Phone,
		DisplayName: metaString(u.UserMetadata, "name"),
		Username:    metaString(u.UserMetadata, "username"),
	}
	if who.Phone == "" {
		who.Phone = metaString(u.UserMetadata, "phone")
	}
	if who.DisplayName == "" {
		who.DisplayName = domain.DefaultDisplayName
	}
	return who
}

// SignUp creates a user. metadata lands in user_metadata.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	resp, err := a.post(ctx, "/auth/v1/signup", "", payload)
	if err != nil {
		return nil, err
	}

	// With email confirmation on, GoTrue answers with the bare user;
	// with auto-confirm it answers with a full grant.
	var grant AuthResponse
	if err := resp.JSON(&grant); err == nil && grant.User != nil {
		return grant.User, nil
	}
	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("unmarshal signup response: %w", err)
	}
	return &user, nil
}

// SignIn exchanges email and password for a token grant.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp, err := a.post(ctx, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return decodeGrant(resp)
}

// Refresh exchanges a refresh token for a new grant.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	resp, err := a.post(ctx, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	return decodeGrant(resp)
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	_, err := a.post(ctx, "/auth/v1/logout", accessToken, nil)
	return err
}

// GetUser asks GoTrue who owns accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.do(a.client.reader, req)
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// VerifyToken resolves the user behind accessToken. With a JWT secret
// configured the signature is checked locally; otherwise, or when local
// verification fails, GoTrue is asked.
func (a *AuthClient) VerifyToken(ctx context.Context, accessToken string) (*User, error) {
	if a.client.jwtSecret != "" {
		if user, err := a.verifyLocal(accessToken); err == nil {
			return user, nil
		}
	}
	return a.GetUser(ctx, accessToken)
}

func (a *AuthClient) verifyLocal(token string) (*User, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.client.jwtSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("jwt invalid")
	}

	user := &User{
		ID:           getStringClaim(claims, "sub"),
		Email:        getStringClaim(claims, "email"),
		Phone:        getStringClaim(claims, "phone"),
		Role:         getStringClaim(claims, "role"),
		Aud:          getStringClaim(claims, "aud"),
		AppMetadata:  getMapClaim(claims, "app_metadata"),
		UserMetadata: getMapClaim(claims, "user_metadata"),
	}
	if user.ID == "" {
		return nil, errors.New("jwt has no subject")
	}
	return user, nil
}

func (a *AuthClient) post(ctx context.Context, path, bearer string, payload any) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return a.client.do(a.client.httpClient, req)
}

func decodeGrant(resp *Response) (*AuthResponse, error) {
	var grant AuthResponse
	if err := resp.JSON(&grant); err != nil {
		return nil, fmt.Errorf("unmarshal token grant: %w", err)
	}
	if grant.AccessToken == "" {
		return nil, errors.New("token grant has no access token")
	}
	return &grant, nil
}

// =============================================================================
// Claim helpers
// =============================================================================

func getStringClaim(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func getMapClaim(claims jwt.MapClaims, key string) map[string]any {
	if m, ok := claims[key].(map[string]any); ok {
		return m
	}
	return nil
}

func metaString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
