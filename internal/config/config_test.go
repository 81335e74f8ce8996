package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

supabase:
  url: "https://abc.supabase.co"
  anon_key: "anon"
  timeout_seconds: 5

storage:
  backend: postgres
  database_url: "postgres://localhost/investwise?sslmode=disable"

submission:
  timeout_seconds: 20
  auto_dismiss_seconds: 0
  min_amount: 1000
  max_amount: 5000

notify:
  enabled: true
  from: "portal@investwise.in"
  to: ["ops@investwise.in"]

logging:
  level: debug
  redact_pii: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, 5, cfg.Supabase.TimeoutSeconds)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)

	// An explicit zero disables auto-dismiss.
	assert.Zero(t, cfg.Submission.AutoDismiss())
	assert.Equal(t, 20, cfg.Submission.TimeoutSeconds)
	assert.Equal(t, 1000.0, cfg.Submission.MinAmount)

	assert.Equal(t, []string{"ops@investwise.in"}, cfg.Notify.To)
	assert.False(t, cfg.Logging.Redact())
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
supabase:
  url: "https://abc.supabase.co"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, BackendSupabase, cfg.Storage.Backend)
	assert.Equal(t, "investwise_session", cfg.Auth.CookieName)
	assert.Equal(t, 15, cfg.Submission.TimeoutSeconds)
	assert.Equal(t, 3, *cfg.Submission.AutoDismissSeconds)
	assert.Equal(t, 50, cfg.Submission.HistoryLimit)
	assert.Equal(t, "none", cfg.Archive.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redact())
	assert.Equal(t, "light", cfg.UI.DefaultTheme)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
supabase:
  url: "https://file.supabase.co"
  anon_key: "file-key"
`)

	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "env-key")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PORT", "3000")
	t.Setenv("NOTIFY_TO", "a@investwise.in, b@investwise.in,")
	t.Setenv("ARCHIVE_S3_BUCKET", "receipts-bucket")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "env-key", cfg.Supabase.AnonKey)
	assert.Equal(t, "postgres://env/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, []string{"a@investwise.in", "b@investwise.in"}, cfg.Notify.To)
	assert.Equal(t, "s3", cfg.Archive.Type)
	assert.Equal(t, "receipts-bucket", cfg.Archive.S3Bucket)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")

	cfg, err := LoadFromEnv("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "https://env.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Storage.Backend = BackendPostgres
	cfg.Submission.MinAmount = 10
	cfg.Submission.MaxAmount = 5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "min_amount")
}

func TestTimeouts(t *testing.T) {
	assert.Equal(t, 45*1000000000, int(SupabaseConfig{TimeoutSeconds: 45}.Timeout().Nanoseconds()))
	assert.Equal(t, 7*24*3600*1000000000, int(AuthConfig{CookieMaxAge: 7 * 24 * 3600}.SessionTTL().Nanoseconds()))
}
