package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/investwise/internal/domain"
)

// profileColumns whitelists the columns duplicate checks may filter on.
var profileColumns = map[string]string{
	"email": "email",
	"phone": "phone",
	"pan":   "pan",
}

// ProfileRepo answers duplicate checks against the profiles table.
type ProfileRepo struct{ db *sql.DB }

// NewProfileRepo creates a Postgres-backed profile repository.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Exists reports whether any profile has column equal to value.
func (r *ProfileRepo) Exists(ctx context.Context, column, value string) (bool, error) {
	col, ok := profileColumns[column]
	if !ok {
		return false, fmt.Errorf("profile lookup: unsupported column %q", column)
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE `+col+` = $1)`,
		value,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("profile lookup by %s: %w", column, err)
	}
	return exists, nil
}

// Create inserts the profile written right after sign-up. A second sign-up
// for the same auth user keeps the first row.
func (r *ProfileRepo) Create(ctx context.Context, p domain.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, username, email, phone, pan, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.FullName, p.Username, p.Email, p.Phone, p.PAN, p.Location)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}
