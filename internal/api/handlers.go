package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/investwise/internal/auth"
	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/distlock"
	"github.com/ignite/investwise/internal/pkg/httputil"
	"github.com/ignite/investwise/internal/pkg/logger"
	"github.com/ignite/investwise/internal/service/account"
	"github.com/ignite/investwise/internal/service/investment"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	config   *config.Config
	sessions *auth.Manager
	accounts *account.Service
	backend  Backend
	desks    *investment.Desks
	pages    *pages

	// Cross-instance submission guard. Both may be nil.
	redisClient *redis.Client
	db          *sql.DB
}

// NewHandlers creates a new Handlers instance
func NewHandlers(cfg *config.Config, sessions *auth.Manager, accounts *account.Service, backend Backend, desks *investment.Desks) *Handlers {
	return &Handlers{
		config:   cfg,
		sessions: sessions,
		accounts: accounts,
		backend:  backend,
		desks:    desks,
		pages:    mustParsePages(),
	}
}

// SetLockBackends sets the Redis client and database used for the
// per-session submission lock.
func (h *Handlers) SetLockBackends(redisClient *redis.Client, db *sql.DB) {
	h.redisClient = redisClient
	h.db = db
}

// desk returns the caller's desk, opening it on first use.
func (h *Handlers) desk(sess *auth.Session) *investment.Desk {
	return h.desks.Open(sess.ID, func() investment.SessionProvider {
		provider, _ := h.backend.Provider(h.sessions.Tokens(sess.ID))
		return provider
	})
}

// history shares the desk's token store, so a refresh on either path is
// seen by the other.
func (h *Handlers) history(sess *auth.Session) investment.HistoryReader {
	_, reader := h.backend.Provider(h.sessions.Tokens(sess.ID))
	return reader
}

// submit runs the desk's workflow while holding the session's submission
// lock. A lock held elsewhere reports ErrSubmissionInFlight.
func (h *Handlers) submit(ctx context.Context, sess *auth.Session, desk *investment.Desk) (investment.Result, error) {
	ttl := h.config.Submission.Timeout() + 5*time.Second
	lock := distlock.NewLock(h.redisClient, h.db, "submission:"+sess.ID, ttl)

	ok, err := lock.Acquire(ctx)
	switch {
	case err != nil:
		// The in-process state machine still rejects duplicates.
		logger.Warn("submission lock unavailable", "error", err)
	case !ok:
		return investment.Result{State: desk.Workflow.State()}, investment.ErrSubmissionInFlight
	default:
		stop := distlock.KeepAlive(lock, ttl)
		defer func() {
			stop()
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("submission lock release failed", "error", err)
			}
		}()
	}

	return desk.Workflow.Submit(ctx)
}

// =============================================================================
// JSON API
// =============================================================================

type meResponse struct {
	Identity domain.Identity  `json:"identity"`
	State    investment.State `json:"state"`
}

// GetMe returns the signed-in user and the desk's workflow state.
//
//	GET /api/me
func (h *Handlers) GetMe(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	desk := h.desk(sess)
	respondJSON(w, http.StatusOK, meResponse{Identity: sess.Identity(), State: desk.Workflow.State()})
}

// GetDraft returns the current form draft.
//
//	GET /api/draft
func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	desk := h.desk(auth.FromContext(r.Context()))
	respondJSON(w, http.StatusOK, desk.Form.Draft())
}

type fieldUpdate struct {
	Value string `json:"value"`
}

// UpdateDraftField replaces one field of the draft.
//
//	PUT /api/draft/{field}
func (h *Handlers) UpdateDraftField(w http.ResponseWriter, r *http.Request) {
	desk := h.desk(auth.FromContext(r.Context()))

	var body fieldUpdate
	if !httputil.Decode(w, r, &body) {
		return
	}

	field := domain.Field(chi.URLParam(r, "field"))
	if err := desk.Form.SetField(field, body.Value); err != nil {
		if errors.Is(err, investment.ErrUnknownField) {
			httputil.NotFound(w, "unknown field "+string(field))
			return
		}
		respondSafeError(w, http.StatusInternalServerError, err, "An internal error occurred")
		return
	}
	respondJSON(w, http.StatusOK, desk.Form.Draft())
}

// CreateSubmission submits the current draft.
//
//	POST /api/submissions
func (h *Handlers) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	desk := h.desk(sess)

	result, err := h.submit(r.Context(), sess, desk)
	if err == nil {
		respondJSON(w, http.StatusCreated, result)
		return
	}

	status, code := submissionStatus(err)
	payload := map[string]interface{}{
		"error": investment.UserMessage(err),
		"code":  code,
		"state": result.State,
	}
	if result.Feedback != nil {
		payload["feedback"] = result.Feedback
	}
	var ve *investment.ValidationError
	if errors.As(err, &ve) {
		payload["field"] = ve.Field
	}
	respondJSON(w, status, payload)
}

// submissionStatus maps workflow errors to HTTP status and error code.
func submissionStatus(err error) (int, string) {
	var ve *investment.ValidationError
	var ae *investment.AuthenticationError
	var pe *investment.PersistenceError
	switch {
	case errors.Is(err, investment.ErrSubmissionInFlight):
		return http.StatusConflict, "in_flight"
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.As(err, &ae):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "persistence_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// GetFeedback returns the feedback currently shown, if any.
//
//	GET /api/feedback
func (h *Handlers) GetFeedback(w http.ResponseWriter, r *http.Request) {
	desk := h.desk(auth.FromContext(r.Context()))
	fb, ok := desk.Presenter.Current()
	resp := map[string]interface{}{"feedback": nil, "state": desk.Workflow.State()}
	if ok {
		resp["feedback"] = fb
	}
	respondJSON(w, http.StatusOK, resp)
}

// DismissFeedback dismisses the feedback with the given id.
//
//	DELETE /api/feedback/{id}
func (h *Handlers) DismissFeedback(w http.ResponseWriter, r *http.Request) {
	desk := h.desk(auth.FromContext(r.Context()))
	if !desk.Presenter.Dismiss(chi.URLParam(r, "id")) {
		httputil.NotFound(w, investment.ErrFeedbackNotFound.Error())
		return
	}
	httputil.NoContent(w)
}

// ListPayments returns the caller's payments, newest first.
//
//	GET /api/payments?limit=50
func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	rows, err := h.history(sess).ListPayments(r.Context(), sess.UserID, h.limit(r))
	if err != nil {
		respondSafeError(w, http.StatusBadGateway, err, safeErrorMessage(http.StatusBadGateway, err))
		return
	}
	if rows == nil {
		rows = []domain.PaymentRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"payments": rows})
}

// ListOrders returns the caller's orders, newest first.
//
//	GET /api/orders?limit=50
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	rows, err := h.history(sess).ListOrders(r.Context(), sess.UserID, h.limit(r))
	if err != nil {
		respondSafeError(w, http.StatusBadGateway, err, safeErrorMessage(http.StatusBadGateway, err))
		return
	}
	if rows == nil {
		rows = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": rows})
}

func (h *Handlers) limit(r *http.Request) int {
	max := h.config.Submission.HistoryLimit
	if max <= 0 {
		max = 50
	}
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > max {
		return max
	}
	return n
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
