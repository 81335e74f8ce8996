package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/investwise/internal/domain"
)

// PaymentRepo implements investment.PaymentWriter against PostgreSQL.
type PaymentRepo struct{ db *sql.DB }

// NewPaymentRepo creates a Postgres-backed payment repository.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// InsertPayment issues one INSERT. Identical transaction references are
// accepted; verification is manual.
func (r *PaymentRepo) InsertPayment(ctx context.Context, rec domain.PaymentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, name, phone, amount, utr, email, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, rec.ID, rec.Name, rec.Phone, rec.Amount, rec.UTR, rec.Email, rec.UserID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// ListPayments returns a user's payments, newest first.
func (r *PaymentRepo) ListPayments(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, phone, amount, utr, email, user_id, created_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		var p domain.PaymentRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Amount, &p.UTR, &p.Email, &p.UserID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
