package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ignite/investwise/internal/auth"
	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/service/account"
	"github.com/ignite/investwise/internal/service/investment"
	"github.com/ignite/investwise/internal/supabase"
)

// fakeStore implements investment.SessionProvider and investment.HistoryReader.
type fakeStore struct {
	mu        sync.Mutex
	identity  *domain.Identity
	insertErr error
	// release, when set, holds InsertPayment until it is closed.
	release  chan struct{}
	inserted []domain.PaymentRecord
	orders    []domain.Order
}

func (f *fakeStore) CurrentIdentity(context.Context) (*domain.Identity, error) {
	return f.identity, nil
}

func (f *fakeStore) InsertPayment(_ context.Context, rec domain.PaymentRecord) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	rec.CreatedAt = time.Now()
	f.inserted = append([]domain.PaymentRecord{rec}, f.inserted...)
	return nil
}

func (f *fakeStore) ListPayments(context.Context, string, int) ([]domain.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PaymentRecord(nil), f.inserted...), nil
}

func (f *fakeStore) ListOrders(context.Context, string, int) ([]domain.Order, error) {
	return f.orders, nil
}

type fakeBackend struct{ store *fakeStore }

func (b fakeBackend) Provider(supabase.TokenStore) (investment.SessionProvider, investment.HistoryReader) {
	return b.store, b.store
}

type fakeAuthProvider struct {
	signUps int
}

func (p *fakeAuthProvider) SignUp(context.Context, domain.Registration) (string, error) {
	p.signUps++
	return "u-new", nil
}

func (p *fakeAuthProvider) SignIn(_ context.Context, email, password string) (*domain.AuthSession, error) {
	if password != "secret1" {
		return nil, errors.New("invalid login credentials")
	}
	return &domain.AuthSession{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		Identity:     domain.Identity{UserID: "u1", Email: email, DisplayName: "Asha"},
	}, nil
}

func (p *fakeAuthProvider) SignOut(context.Context, string) error { return nil }

type fakeProfiles struct {
	taken map[string]string
}

func (p *fakeProfiles) Exists(_ context.Context, column, value string) (bool, error) {
	return p.taken[column] == value, nil
}

func (p *fakeProfiles) Create(context.Context, domain.Profile) error { return nil }

type testEnv struct {
	handler  http.Handler
	store    *fakeStore
	sessions *auth.Manager
	cookie   *http.Cookie
	provider *fakeAuthProvider
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	store := &fakeStore{identity: &domain.Identity{UserID: "u1", Email: "asha@example.com", DisplayName: "Asha"}}
	env := newTestEnv(t, fakeBackend{store: store}, 0, &domain.AuthSession{
		AccessToken: "access",
		Identity:    domain.Identity{UserID: "u1", Email: "asha@example.com", DisplayName: "Asha"},
	})
	env.store = store
	return env
}

func newTestEnv(t *testing.T, backend Backend, autoDismiss time.Duration, as *domain.AuthSession) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Auth: config.AuthConfig{
			SessionSecret: "test-secret",
			CookieName:    "investwise_session",
			CookieMaxAge:  3600,
		},
		Submission: config.SubmissionConfig{TimeoutSeconds: 5, HistoryLimit: 50},
		UI:         config.UIConfig{DefaultTheme: "light"},
	}

	sessions := auth.NewManager(&cfg.Auth, auth.NewMemoryStore())
	provider := &fakeAuthProvider{}
	accounts := account.NewService(provider, &fakeProfiles{taken: map[string]string{"email": "taken@example.com"}})
	desks := investment.NewDesks(investment.DeskConfig{
		AutoDismiss: autoDismiss,
		Options:     investment.Options{Timeout: cfg.Submission.Timeout()},
	})
	sessions.OnEnd(desks.Close)

	h := NewHandlers(cfg, sessions, accounts, backend, desks)
	srv := NewServer(cfg.Server, h, sessions, RouteDeps{Health: NewHealthChecker(nil, nil, okPinger{}, nil)})

	rec := httptest.NewRecorder()
	_, err := sessions.Create(context.Background(), rec, as)
	require.NoError(t, err)

	return &testEnv{
		handler:  srv.Handler(),
		sessions: sessions,
		cookie:   rec.Result().Cookies()[0],
		provider: provider,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if signedIn {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signedIn {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) fillDraft(t *testing.T, name, phone, amount, utr string) {
	t.Helper()
	for field, value := range map[string]string{"name": name, "phone": phone, "amount": amount, "utr": utr} {
		rec := e.do(t, http.MethodPut, "/api/draft/"+field, map[string]string{"value": value}, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

func TestAPI_RequiresAuth(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/me", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestAPI_Me(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/me", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "Asha", body["identity"].(map[string]interface{})["name"])
}

func TestAPI_DraftFields(t *testing.T) {
	env := setupTestServer(t)
	env.fillDraft(t, "Asha", "9876543210", "5000", "123456789012")

	rec := env.do(t, http.MethodGet, "/api/draft", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var d domain.Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "9876543210", d.PhoneNumber)
	assert.Equal(t, "123456789012", d.TransactionReference)

	rec = env.do(t, http.MethodPut, "/api/draft/ifsc", map[string]string{"value": "x"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SubmissionValidationError(t *testing.T) {
	env := setupTestServer(t)
	env.fillDraft(t, "Asha", "12345", "5000", "123456789012")

	rec := env.do(t, http.MethodPost, "/api/submissions", nil, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "phone", body["field"])
	assert.Equal(t, "failed", body["state"])
	assert.Empty(t, env.store.inserted)
}

func TestAPI_SubmissionSuccessThenConflictUntilDismissed(t *testing.T) {
	env := setupTestServer(t)
	env.fillDraft(t, "Asha", "9876543210", "5000", "123456789012")

	rec := env.do(t, http.MethodPost, "/api/submissions", nil, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "succeeded", body["state"])
	fb := body["feedback"].(map[string]interface{})
	assert.Equal(t, true, fb["celebrate"])
	require.Len(t, env.store.inserted, 1)
	assert.Equal(t, "u1", env.store.inserted[0].UserID)
	assert.Equal(t, "asha@example.com", env.store.inserted[0].Email)

	// Draft was reset.
	rec = env.do(t, http.MethodGet, "/api/draft", nil, true)
	var d domain.Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.True(t, d.IsEmpty())

	// Concluded until dismissed.
	rec = env.do(t, http.MethodPost, "/api/submissions", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	id := fb["id"].(string)
	rec = env.do(t, http.MethodDelete, "/api/feedback/"+id, nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/feedback/"+id, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/feedback", nil, true)
	body = decodeBody(t, rec)
	assert.Nil(t, body["feedback"])
	assert.Equal(t, "idle", body["state"])
}

func TestAPI_SubmissionPersistenceError(t *testing.T) {
	env := setupTestServer(t)
	env.store.insertErr = errors.New("pq: relation payments does not exist")
	env.fillDraft(t, "Asha", "9876543210", "5000", "123456789012")

	rec := env.do(t, http.MethodPost, "/api/submissions", nil, true)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
	assert.Contains(t, rec.Body.String(), investment.MsgSubmissionFailed)

	rec = env.do(t, http.MethodGet, "/api/draft", nil, true)
	var d domain.Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "123456789012", d.TransactionReference)
}

func TestAPI_SubmissionWithoutIdentity(t *testing.T) {
	env := setupTestServer(t)
	env.store.identity = nil
	env.fillDraft(t, "Asha", "9876543210", "5000", "123456789012")

	rec := env.do(t, http.MethodPost, "/api/submissions", nil, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.store.inserted)
}

func TestAPI_History(t *testing.T) {
	env := setupTestServer(t)
	env.store.orders = []domain.Order{{ID: "o1", UserID: "u1", MinAmount: 1000, MaxAmount: 5000, Status: domain.OrderPending}}

	rec := env.do(t, http.MethodGet, "/api/payments", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payments":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/orders?limit=5", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"o1"`)
}

func TestSubmissionStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{investment.ErrSubmissionInFlight, http.StatusConflict},
		{&investment.ValidationError{Field: domain.FieldPhoneNumber}, http.StatusUnprocessableEntity},
		{&investment.AuthenticationError{}, http.StatusUnauthorized},
		{&investment.PersistenceError{Cause: errors.New("x")}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := submissionStatus(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}

func TestPages_DashboardRedirectsWhenSignedOut(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/dashboard", nil, false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/sign-in", rec.Header().Get("Location"))
}

func TestPages_DashboardThemeAndGreeting(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/dashboard?theme=dark", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-theme="dark"`)
	assert.Contains(t, rec.Body.String(), "Welcome, Asha")

	rec = env.do(t, http.MethodGet, "/dashboard?theme=neon", nil, true)
	assert.Contains(t, rec.Body.String(), `data-theme="light"`)
}

func TestPages_SubmitPaymentPRG(t *testing.T) {
	env := setupTestServer(t)
	form := url.Values{
		"name":   {"Asha"},
		"phone":  {"9876543210"},
		"amount": {"5000"},
		"utr":    {"123456789012"},
	}
	rec := env.postForm(t, "/dashboard/payments?theme=dark", form, true)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?theme=dark", rec.Header().Get("Location"))
	require.Len(t, env.store.inserted, 1)

	rec = env.do(t, http.MethodGet, "/dashboard", nil, true)
	assert.Contains(t, rec.Body.String(), investment.MsgSubmitted)
	assert.Contains(t, rec.Body.String(), "celebrate")

	// A second post acknowledges the shown outcome and submits again.
	rec = env.postForm(t, "/dashboard/payments", form, true)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, env.store.inserted, 2)
}

func TestPages_DashboardShowsAutoDismiss(t *testing.T) {
	store := &fakeStore{identity: &domain.Identity{UserID: "u1", Email: "asha@example.com", DisplayName: "Asha"}}
	env := newTestEnv(t, fakeBackend{store: store}, 5*time.Second, &domain.AuthSession{
		AccessToken: "access",
		Identity:    domain.Identity{UserID: "u1", Email: "asha@example.com", DisplayName: "Asha"},
	})

	rec := env.do(t, http.MethodGet, "/dashboard", nil, true)
	assert.NotContains(t, rec.Body.String(), `http-equiv="refresh"`)

	form := url.Values{"name": {"Asha"}, "phone": {"12345"}, "amount": {"5000"}, "utr": {"123456789012"}}
	rec = env.postForm(t, "/dashboard/payments", form, true)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(t, http.MethodGet, "/dashboard", nil, true)
	body := rec.Body.String()
	assert.Contains(t, body, `<meta http-equiv="refresh" content="5">`)
	assert.Contains(t, body, "Closes in 5s")

	manual := setupTestServer(t)
	manual.postForm(t, "/dashboard/payments", form, true)
	rec = manual.do(t, http.MethodGet, "/dashboard", nil, true)
	assert.NotContains(t, rec.Body.String(), `http-equiv="refresh"`)
	assert.NotContains(t, rec.Body.String(), "Closes in")
}

func TestPages_SubmitPaymentMalformedForm(t *testing.T) {
	env := setupTestServer(t)
	env.fillDraft(t, "Asha", "9876543210", "5000", "123456789012")

	req := httptest.NewRequest(http.MethodPost, "/dashboard/payments", strings.NewReader("name=%zz&phone=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(env.cookie)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgMalformedForm)
	assert.Empty(t, env.store.inserted)

	rec = env.do(t, http.MethodGet, "/api/draft", nil, true)
	draft := decodeBody(t, rec)
	assert.Equal(t, "9876543210", draft["phone"])
}

func TestPages_SubmitPaymentLeavesInFlightDraftAlone(t *testing.T) {
	env := setupTestServer(t)
	env.store.release = make(chan struct{})
	env.fillDraft(t, "Asha", "9876543210", "5000", "123456789012")

	done := make(chan int, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/api/submissions", nil, true).Code
	}()
	require.Eventually(t, func() bool {
		return decodeBody(t, env.do(t, http.MethodGet, "/api/me", nil, true))["state"] == "persisting"
	}, 2*time.Second, 10*time.Millisecond)

	form := url.Values{"name": {"Ravi"}, "phone": {"9123456780"}, "amount": {"100"}, "utr": {"999999999999"}}
	rec := env.postForm(t, "/dashboard/payments", form, true)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	draft := decodeBody(t, env.do(t, http.MethodGet, "/api/draft", nil, true))
	assert.Equal(t, "Asha", draft["name"])

	close(env.store.release)
	assert.Equal(t, http.StatusCreated, <-done)

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	require.Len(t, env.store.inserted, 1)
	assert.Equal(t, "Asha", env.store.inserted[0].Name)
}

func TestPages_SignIn(t *testing.T) {
	env := setupTestServer(t)

	rec := env.postForm(t, "/sign-in", url.Values{"email": {"asha@example.com"}, "password": {"wrong"}}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "asha@example.com")

	rec = env.postForm(t, "/sign-in", url.Values{"email": {"asha@example.com"}, "password": {"secret1"}}, false)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "investwise_session", rec.Result().Cookies()[0].Name)
}

func TestPages_SignUp(t *testing.T) {
	env := setupTestServer(t)
	form := url.Values{
		"name":             {"Asha Rao"},
		"email":            {"taken@example.com"},
		"phone":            {"9876543210"},
		"pan":              {"abcde1234f"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	}
	rec := env.postForm(t, "/sign-up", form, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email already registered.")
	assert.NotContains(t, rec.Body.String(), "secret1")
	assert.Equal(t, 0, env.provider.signUps)

	form.Set("email", "new@example.com")
	rec = env.postForm(t, "/sign-up", form, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), account.MsgSignedUp)
	assert.Equal(t, 1, env.provider.signUps)
}

func TestPages_SignOutEndsSession(t *testing.T) {
	env := setupTestServer(t)
	rec := env.postForm(t, "/sign-out", url.Values{}, true)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/me", nil, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	hc := NewHealthChecker(nil, nil, okPinger{err: errors.New("down")}, nil)
	rec = httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	hc.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSafeErrorMessage(t *testing.T) {
	assert.Equal(t, "A database error occurred", safeErrorMessage(502, errors.New("pq: syntax error")))
	assert.Equal(t, "Request timed out", safeErrorMessage(502, context.DeadlineExceeded))
	assert.Equal(t, "bad input", safeErrorMessage(400, errors.New("bad input")))
}

// rotatingGoTrue issues a new refresh token on every refresh and rejects
// any refresh token that was already used, as GoTrue does.
type rotatingGoTrue struct {
	mu      sync.Mutex
	access  string
	refresh string
	issued  int
	inserts int
}

func (g *rotatingGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.URL.Path == "/auth/v1/token" {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != g.refresh {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
			return
		}
		g.issued++
		g.access = "access-" + strconv.Itoa(g.issued)
		g.refresh = "refresh-" + strconv.Itoa(g.issued+1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  g.access,
			"refresh_token": g.refresh,
			"expires_in":    3600,
		})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+g.access {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
		return
	}
	switch {
	case r.URL.Path == "/auth/v1/user":
		_, _ = w.Write([]byte(`{"id":"u1","email":"asha@example.com","user_metadata":{"name":"Asha"}}`))
	case r.URL.Path == "/rest/v1/payments" && r.Method == http.MethodPost:
		g.inserts++
		w.WriteHeader(http.StatusCreated)
	default:
		_, _ = w.Write([]byte(`[]`))
	}
}

func TestSupabaseBackend_RotatedRefreshTokenIsShared(t *testing.T) {
	gotrue := &rotatingGoTrue{access: "stale", refresh: "refresh-1"}
	srv := httptest.NewServer(gotrue)
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{URL: srv.URL, AnonKey: "anon"})
	require.NoError(t, err)

	env := newTestEnv(t, SupabaseBackend{Client: client}, 0, &domain.AuthSession{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Identity:     domain.Identity{UserID: "u1", Email: "asha@example.com", DisplayName: "Asha"},
	})

	// The dashboard's history read opens the desk and rotates the token.
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(env.cookie)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	env.fillDraft(t, "Asha Rao", "9876543210", "5000", "123456789012")
	rec = env.do(t, http.MethodPost, "/api/submissions", nil, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Expire the rotated token again; the next read refreshes with the
	// latest refresh token and the desk sees the result.
	sess := env.sessions.GetSession(req)
	require.NotNil(t, sess)
	require.NoError(t, env.sessions.UpdateTokens(context.Background(), sess.ID, &oauth2.Token{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}))
	rec = env.do(t, http.MethodGet, "/api/payments", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	gotrue.mu.Lock()
	defer gotrue.mu.Unlock()
	assert.Equal(t, 1, gotrue.inserts)
	assert.Equal(t, 2, gotrue.issued)

	stored := env.sessions.GetSession(req)
	require.NotNil(t, stored)
	assert.Equal(t, "refresh-3", stored.RefreshToken)
	assert.Equal(t, "access-2", stored.AccessToken)
}
