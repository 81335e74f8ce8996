package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/investwise/internal/auth"
	"github.com/ignite/investwise/internal/metrics"
	"github.com/ignite/investwise/internal/pkg/ratelimit"
)

// RouteDeps carries the optional pieces mounted next to the handlers.
type RouteDeps struct {
	Health  *HealthChecker
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
	Origins []string
}

// SetupRoutes configures all page, API and operational routes.
func SetupRoutes(h *Handlers, sessions *auth.Manager, deps RouteDeps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.InstrumentHandler)
	}

	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:8080"}
	}
	// CORS - credentials allowed for the session cookie, explicit origins only
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limit := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		limit = deps.Limiter.Handler
	}

	// Operational endpoints (no auth required)
	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/health/live", deps.Health.HandleLiveness)
		r.Get("/health/ready", deps.Health.HandleReadiness)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Public pages
	r.Get("/", h.Landing)
	r.Get("/sign-up", h.SignUpPage)
	r.Get("/sign-in", h.SignInPage)
	r.With(limit).Post("/sign-up", h.SignUp)
	r.With(limit).Post("/sign-in", h.SignIn)
	r.Post("/sign-out", h.SignOut)

	// Dashboard pages
	r.Group(func(r chi.Router) {
		r.Use(sessions.RequireAuth)
		r.Get("/dashboard", h.Dashboard)
		r.With(limit).Post("/dashboard/payments", h.SubmitPayment)
		r.Post("/dashboard/feedback/{id}/dismiss", h.DismissFeedbackPage)
	})

	// JSON API
	r.Route("/api", func(r chi.Router) {
		r.Use(sessions.RequireAuth)
		r.Get("/me", h.GetMe)
		r.Get("/draft", h.GetDraft)
		r.Put("/draft/{field}", h.UpdateDraftField)
		r.With(limit).Post("/submissions", h.CreateSubmission)
		r.Get("/feedback", h.GetFeedback)
		r.Delete("/feedback/{id}", h.DismissFeedback)
		r.Get("/payments", h.ListPayments)
		r.Get("/orders", h.ListOrders)
	})

	return r
}
