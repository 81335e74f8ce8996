package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/investwise/internal/domain"
)

// OrderRepo reads the orders table. Orders are created by back-office
// tooling; the portal never writes them.
type OrderRepo struct{ db *sql.DB }

// NewOrderRepo creates a Postgres-backed order repository.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// ListOrders returns a user's orders, newest first.
func (r *OrderRepo) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, min_amount, max_amount, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.MinAmount, &o.MaxAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// History serves both history listings from one database.
type History struct {
	*PaymentRepo
	*OrderRepo
}

// NewHistory creates a history reader over db.
func NewHistory(db *sql.DB) History {
	return History{PaymentRepo: NewPaymentRepo(db), OrderRepo: NewOrderRepo(db)}
}
