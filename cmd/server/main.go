package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/investwise/internal/api"
	"github.com/ignite/investwise/internal/auth"
	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/metrics"
	"github.com/ignite/investwise/internal/notify"
	"github.com/ignite/investwise/internal/pkg/logger"
	"github.com/ignite/investwise/internal/pkg/ratelimit"
	"github.com/ignite/investwise/internal/repository/postgres"
	"github.com/ignite/investwise/internal/service/account"
	"github.com/ignite/investwise/internal/service/investment"
	"github.com/ignite/investwise/internal/storage"
	"github.com/ignite/investwise/internal/supabase"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(ctx context.Context, cfg config.StorageConfig) (*sql.DB, error) {
	dbURL := cfg.DatabaseURL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
		sep = "&"
	}
	dbURL += sep + "options=-c%20statement_timeout%3D15000%20-c%20idle_in_transaction_session_timeout%3D15000"
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(ctx context.Context, redisURL string) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	var client *redis.Client
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v; using in-memory sessions", err)
		client.Close()
		return nil
	}
	return client
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  InvestWise Portal (cmd/server/main.go)                    ║")
	log.Println("║  Investor sign-up, payment submission and history          ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Supabase: auth always, rows unless the Postgres backend is selected
	sb, err := supabase.New(supabase.Config{
		URL:       cfg.Supabase.URL,
		AnonKey:   cfg.Supabase.AnonKey,
		JWTSecret: cfg.Supabase.JWTSecret,
		Timeout:   cfg.Supabase.Timeout(),
		Retries:   cfg.Supabase.Retries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize Supabase client: %v", err)
	}
	log.Printf("Supabase client initialized: %s", cfg.Supabase.URL)

	var (
		db       *sql.DB
		backend  api.Backend
		profiles account.ProfileDirectory
	)
	switch cfg.Storage.Backend {
	case "postgres":
		db, err = openDatabase(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		backend = api.PostgresBackend{
			Client:   sb,
			Payments: postgres.NewPaymentRepo(db),
			History:  postgres.NewHistory(db),
		}
		profiles = postgres.NewProfileRepo(db)
		log.Println("Storage backend: PostgreSQL (direct)")
	default:
		backend = api.SupabaseBackend{Client: sb}
		profiles = supabase.NewProfiles(sb)
		log.Println("Storage backend: Supabase PostgREST")
	}

	// Sessions: Redis when configured, otherwise in memory
	var redisClient *redis.Client
	var sessionStore auth.Store = auth.NewMemoryStore()
	if cfg.Redis.Enabled() {
		if redisClient = openRedis(ctx, cfg.Redis.URL); redisClient != nil {
			defer redisClient.Close()
			sessionStore = auth.NewRedisStore(redisClient)
			log.Println("Redis connected (shared sessions and submission locks enabled)")
		}
	} else {
		log.Println("Redis not configured (REDIS_URL not set); sessions are per-instance")
	}
	sessions := auth.NewManager(&cfg.Auth, sessionStore)

	// Submission hooks: receipt archive and operator notification
	var hooks []investment.SubmittedHook
	var archive api.Pinger
	store, err := storage.New(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to initialize receipt archive: %v", err)
	}
	if store.Enabled() {
		hooks = append(hooks, store.Hook())
		archive = store
		log.Printf("Receipt archive enabled (%s)", cfg.Archive.Type)
	}

	if cfg.Notify.Enabled {
		notifier, err := notify.New(ctx, cfg.Notify)
		if err != nil {
			log.Printf("Warning: payment notifications disabled: %v", err)
		} else {
			hooks = append(hooks, notifier.Hook())
			log.Printf("Payment notifications enabled (%d recipients)", len(cfg.Notify.To))
		}
	}

	// Desks: one form + workflow + presenter per browser session
	var desks *investment.Desks
	m := metrics.New(func() int { return desks.Len() })
	desks = investment.NewDesks(investment.DeskConfig{
		AutoDismiss: cfg.Submission.AutoDismiss(),
		Options: investment.Options{
			Timeout:     cfg.Submission.Timeout(),
			AmountRange: investment.AmountRange{Min: cfg.Submission.MinAmount, Max: cfg.Submission.MaxAmount},
			Hooks:       hooks,
			Observer:    m,
		},
	})
	sessions.OnEnd(desks.Close)

	accounts := account.NewService(supabase.NewAccounts(sb), profiles)
	handlers := api.NewHandlers(cfg, sessions, accounts, backend, desks)
	handlers.SetLockBackends(redisClient, db)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, nil)

	server := api.NewServer(cfg.Server, handlers, sessions, api.RouteDeps{
		Health:  api.NewHealthChecker(db, redisClient, sb, archive),
		Metrics: m,
		Limiter: limiter,
		Origins: cfg.UI.CORSOrigins,
	})
	log.Println("Health check routes registered: /health, /health/live, /health/ready")

	// Sweep expired sessions, idle desks and idle rate-limit buckets
	interval := cfg.Auth.CleanupInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	sessions.CleanupExpiredSessions(ctx, interval,
		func() {
			if n := desks.Evict(cfg.Auth.SessionTTL()); n > 0 {
				logger.Info("evicted idle desks", "count", n)
			}
		},
		func() { limiter.Cleanup(10 * time.Minute) },
	)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
