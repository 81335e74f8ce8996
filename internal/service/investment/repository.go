package investment

import (
	"context"

	"github.com/ignite/investwise/internal/domain"
)

// IdentityResolver looks up the identity behind the current session.
type IdentityResolver interface {
	// CurrentIdentity returns (nil, nil) when there is no signed-in user.
	CurrentIdentity(ctx context.Context) (*domain.Identity, error)
}

// PaymentWriter persists a payment record.
type PaymentWriter interface {
	// InsertPayment issues exactly one insert into the payments collection.
	InsertPayment(ctx context.Context, rec domain.PaymentRecord) error
}

// SessionProvider is the capability the workflow is constructed with: the
// hosted auth/database service seen through one signed-in session.
type SessionProvider interface {
	IdentityResolver
	PaymentWriter
}

// HistoryReader lists the rows a user has created, newest first.
type HistoryReader interface {
	ListPayments(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

// NewSessionProvider joins an identity source and a payment store that live
// in different backends, e.g. auth tokens from the hosted service and rows in
// a self-managed Postgres.
func NewSessionProvider(r IdentityResolver, w PaymentWriter) SessionProvider {
	return splitProvider{IdentityResolver: r, PaymentWriter: w}
}

type splitProvider struct {
	IdentityResolver
	PaymentWriter
}

// SubmittedHook runs after a payment record was persisted. Hooks run in
// their own goroutine with a context detached from the request.
type SubmittedHook func(ctx context.Context, rec domain.PaymentRecord)

// Observer receives one call per concluded submission attempt.
type Observer interface {
	SubmissionFinished(outcome string, elapsedSeconds float64)
}
