package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/investwise/internal/domain"
)

// Accounts adapts the auth client to the account service.
type Accounts struct {
	auth *AuthClient
}

// NewAccounts creates the adapter.
func NewAccounts(c *Client) *Accounts {
	return &Accounts{auth: c.Auth()}
}

// SignUp registers reg with its profile fields as user metadata and
// returns the new user's id.
func (a *Accounts) SignUp(ctx context.Context, reg domain.Registration) (string, error) {
	user, err := a.auth.SignUp(ctx, reg.Email, reg.Password, map[string]any{
		"name":     reg.Name,
		"username": reg.Username,
		"phone":    reg.Phone,
		"location": reg.Location,
		"pan":      reg.PAN,
	})
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// SignIn returns the tokens and identity for a password sign-in.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	grant, err := a.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	sess := &domain.AuthSession{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.Token().Expiry,
	}
	if grant.User != nil {
		sess.Identity = grant.User.Identity()
	} else {
		user, err := a.auth.VerifyToken(ctx, grant.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("resolve signed-in user: %w", err)
		}
		sess.Identity = user.Identity()
	}
	return sess, nil
}

// SignOut revokes the session behind accessToken.
func (a *Accounts) SignOut(ctx context.Context, accessToken string) error {
	return a.auth.SignOut(ctx, accessToken)
}

// Profiles answers duplicate checks against the profiles table.
type Profiles struct {
	client *Client
}

// NewProfiles creates the profiles reader.
func NewProfiles(c *Client) *Profiles {
	return &Profiles{client: c}
}

// Exists reports whether any profile has column equal to value.
func (p *Profiles) Exists(ctx context.Context, column, value string) (bool, error) {
	resp, err := p.client.From(tableProfiles).
		Select("id").
		Eq(column, value).
		Limit(1).
		Execute(ctx)
	if err != nil {
		return false, fmt.Errorf("lookup profile by %s: %w", column, err)
	}

	var rows []struct {
		ID string `json:"id"`
	}
	if err := resp.JSON(&rows); err != nil {
		return false, fmt.Errorf("decode profiles: %w", err)
	}
	return len(rows) > 0, nil
}

type profileRow struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	PAN      string `json:"pan"`
	Location string `json:"location,omitempty"`
}

// Create inserts the profile row written right after sign-up.
func (p *Profiles) Create(ctx context.Context, prof domain.Profile) error {
	return p.client.Insert(ctx, tableProfiles, []profileRow{{
		ID:       prof.ID,
		FullName: prof.FullName,
		Username: prof.Username,
		Email:    prof.Email,
		Phone:    prof.Phone,
		PAN:      prof.PAN,
		Location: prof.Location,
	}})
}

// Ping checks that the REST endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.From(tableProfiles).Select("id").Limit(1).Execute(ctx)
	return err
}
