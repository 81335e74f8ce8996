package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends for payments, orders and profiles.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the portal
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Submission SubmissionConfig `yaml:"submission"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Notify     NotifyConfig     `yaml:"notify"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Logging    LoggingConfig    `yaml:"logging"`
	UI         UIConfig         `yaml:"ui"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int    `yaml:"port"`
	Host                   string `yaml:"host"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// SupabaseConfig points at the hosted auth + REST backend.
type SupabaseConfig struct {
	URL            string `yaml:"url"`
	AnonKey        string `yaml:"anon_key"`
	JWTSecret      string `yaml:"jwt_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retries        int    `yaml:"retries"`
}

// Timeout returns the configured timeout as a duration
func (c SupabaseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig selects where payment rows live.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	MaxConns    int    `yaml:"max_conns"`
}

// RedisConfig enables the shared session store and submission lock.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// AuthConfig holds browser session settings
type AuthConfig struct {
	SessionSecret          string `yaml:"session_secret"`
	CookieName             string `yaml:"cookie_name"`
	CookieMaxAge           int    `yaml:"cookie_max_age"`
	SecureCookie           bool   `yaml:"secure_cookie"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
}

// SessionTTL returns the cookie lifetime.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.CookieMaxAge) * time.Second
}

// CleanupInterval returns how often expired sessions and idle desks are swept.
func (c AuthConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// SubmissionConfig tunes the investment-submission workflow.
type SubmissionConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// AutoDismissSeconds of 0 means feedback stays until dismissed.
	AutoDismissSeconds *int    `yaml:"auto_dismiss_seconds"`
	MinAmount          float64 `yaml:"min_amount"`
	MaxAmount          float64 `yaml:"max_amount"`
	HistoryLimit       int     `yaml:"history_limit"`
}

// Timeout returns the per-attempt deadline.
func (c SubmissionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AutoDismiss returns the feedback auto-dismiss delay.
func (c SubmissionConfig) AutoDismiss() time.Duration {
	if c.AutoDismissSeconds == nil {
		return 0
	}
	return time.Duration(*c.AutoDismissSeconds) * time.Second
}

// RateLimitConfig bounds requests per client IP on auth and submission routes.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// NotifyConfig holds the admin notification mailer (SES v2).
type NotifyConfig struct {
	Enabled        bool     `yaml:"enabled"`
	From           string   `yaml:"from"`
	To             []string `yaml:"to"`
	Region         string   `yaml:"region"`
	AccessKey      string   `yaml:"access_key"`
	SecretKey      string   `yaml:"secret_key"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	TemplatePath   string   `yaml:"template_path"`
}

// Timeout returns the configured timeout as a duration
func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArchiveConfig holds the submission receipt archive.
type ArchiveConfig struct {
	Type       string `yaml:"type"`
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ArchiveConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It is on unless disabled.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// UIConfig holds page rendering settings.
type UIConfig struct {
	DefaultTheme string   `yaml:"default_theme"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 20
	}
	if cfg.Supabase.TimeoutSeconds == 0 {
		cfg.Supabase.TimeoutSeconds = 10
	}
	if cfg.Supabase.Retries == 0 {
		cfg.Supabase.Retries = 2
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSupabase
	}
	if cfg.Storage.MaxConns == 0 {
		cfg.Storage.MaxConns = 10
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "investwise_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 7 * 24 * 3600
	}
	if cfg.Auth.CleanupIntervalSeconds == 0 {
		cfg.Auth.CleanupIntervalSeconds = 300
	}
	if cfg.Submission.TimeoutSeconds == 0 {
		cfg.Submission.TimeoutSeconds = 15
	}
	if cfg.Submission.AutoDismissSeconds == nil {
		three := 3
		cfg.Submission.AutoDismissSeconds = &three
	}
	if cfg.Submission.HistoryLimit == 0 {
		cfg.Submission.HistoryLimit = 50
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 2
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.Notify.Region == "" {
		cfg.Notify.Region = "ap-south-1"
	}
	if cfg.Notify.TimeoutSeconds == 0 {
		cfg.Notify.TimeoutSeconds = 10
	}
	if cfg.Archive.Type == "" {
		cfg.Archive.Type = "none"
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "./data/receipts"
	}
	if cfg.Archive.S3Prefix == "" {
		cfg.Archive.S3Prefix = "receipts/"
	}
	if cfg.Archive.AWSRegion == "" {
		cfg.Archive.AWSRegion = cfg.Notify.Region
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.UI.DefaultTheme == "" {
		cfg.UI.DefaultTheme = "light"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Environment-only deployments ship no config file.
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		cfg.Supabase.AnonKey = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		cfg.Supabase.JWTSecret = v
	}

	// Database override (ECS deployments keep local defaults in config.yaml)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}

	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Notify.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Notify.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Notify.Region = v
	}
	if v := os.Getenv("NOTIFY_FROM"); v != "" {
		cfg.Notify.From = v
	}
	if v := os.Getenv("NOTIFY_TO"); v != "" {
		cfg.Notify.To = splitList(v)
	}

	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
		cfg.Archive.Type = "s3"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Supabase.URL == "" {
		errs = append(errs, errors.New("supabase.url (SUPABASE_URL) is required"))
	}
	if cfg.Supabase.AnonKey == "" {
		errs = append(errs, errors.New("supabase.anon_key (SUPABASE_ANON_KEY) is required"))
	}
	switch cfg.Storage.Backend {
	case BackendSupabase:
	case BackendPostgres:
		if cfg.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url (DATABASE_URL) is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of supabase, postgres", cfg.Storage.Backend))
	}
	if cfg.Submission.AutoDismissSeconds != nil && *cfg.Submission.AutoDismissSeconds < 0 {
		errs = append(errs, errors.New("submission.auto_dismiss_seconds must be >= 0"))
	}
	if cfg.Submission.MaxAmount > 0 && cfg.Submission.MinAmount > cfg.Submission.MaxAmount {
		errs = append(errs, errors.New("submission.min_amount exceeds max_amount"))
	}
	if cfg.Notify.Enabled && (cfg.Notify.From == "" || len(cfg.Notify.To) == 0) {
		errs = append(errs, errors.New("notify.from and notify.to are required when notify is enabled"))
	}
	if cfg.Archive.Type == "s3" && cfg.Archive.S3Bucket == "" {
		errs = append(errs, errors.New("archive.s3_bucket is required for the s3 archive"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
