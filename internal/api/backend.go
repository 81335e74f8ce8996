package api

import (
	"github.com/ignite/investwise/internal/repository/postgres"
	"github.com/ignite/investwise/internal/service/investment"
	"github.com/ignite/investwise/internal/supabase"
)

// Backend hands out the per-session capabilities the dashboard needs.
type Backend interface {
	// Provider returns the session provider and history reader bound to the
	// browser session's stored token.
	Provider(tokens supabase.TokenStore) (investment.SessionProvider, investment.HistoryReader)
}

// SupabaseBackend keeps all rows in Supabase, read and written with the
// user's JWT.
type SupabaseBackend struct {
	Client *supabase.Client
}

func (b SupabaseBackend) Provider(tokens supabase.TokenStore) (investment.SessionProvider, investment.HistoryReader) {
	s := b.Client.SessionFor(tokens)
	return s, s
}

// PostgresBackend resolves identity through Supabase auth and keeps rows in
// a directly managed Postgres database.
type PostgresBackend struct {
	Client   *supabase.Client
	Payments *postgres.PaymentRepo
	History  postgres.History
}

func (b PostgresBackend) Provider(tokens supabase.TokenStore) (investment.SessionProvider, investment.HistoryReader) {
	s := b.Client.SessionFor(tokens)
	return investment.NewSessionProvider(s, b.Payments), b.History
}
