package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/investwise/internal/auth"
	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/logger"
	"github.com/ignite/investwise/internal/service/account"
	"github.com/ignite/investwise/internal/service/investment"
)

// MsgMalformedForm is shown when a posted form cannot be parsed.
const MsgMalformedForm = "The form could not be read. Please try again."

//go:embed templates/*.html
var templateFS embed.FS

// pages holds one parsed template set per page, each sharing the layout.
type pages struct {
	sets map[string]*template.Template
}

func mustParsePages() *pages {
	p := &pages{sets: make(map[string]*template.Template)}
	for _, name := range []string{"landing", "sign_up", "sign_in", "dashboard"} {
		p.sets[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return p
}

// pageData is shared by every page.
type pageData struct {
	Title       string
	Theme       string
	Identity    *domain.Identity
	Message     string
	MessageKind string

	// sign-up / sign-in
	Registration domain.Registration
	Email        string

	// dashboard
	Draft    domain.Draft
	Feedback *domain.Feedback
	// DismissAfter is the auto-dismiss delay in whole seconds, 0 if manual.
	DismissAfter int
	Busy         bool
	Payments []domain.PaymentRecord
	Orders   []domain.Order
}

func (p *pages) render(w http.ResponseWriter, status int, name string, data *pageData) {
	var buf bytes.Buffer
	if err := p.sets[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("template render failed", "page", name, "error", err)
		http.Error(w, "An internal error occurred", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// theme picks the ?theme= override when valid, else the configured default.
func (h *Handlers) theme(r *http.Request) string {
	switch t := r.URL.Query().Get("theme"); t {
	case "light", "dark":
		return t
	}
	if h.config.UI.DefaultTheme != "" {
		return h.config.UI.DefaultTheme
	}
	return "light"
}

func (h *Handlers) newPage(r *http.Request, title string) *pageData {
	data := &pageData{Title: title, Theme: h.theme(r)}
	if sess := h.sessions.GetSession(r); sess != nil {
		id := sess.Identity()
		data.Identity = &id
	}
	return data
}

// Landing renders the public home page.
//
//	GET /
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, http.StatusOK, "landing", h.newPage(r, "Home"))
}

// SignUpPage renders the registration form.
//
//	GET /sign-up
func (h *Handlers) SignUpPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, http.StatusOK, "sign_up", h.newPage(r, "Sign up"))
}

// SignUp registers a new investor.
//
//	POST /sign-up
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.render(w, http.StatusBadRequest, "sign_up", h.newPage(r, "Sign up"))
		return
	}
	reg := domain.Registration{
		Name:            r.PostFormValue("name"),
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Phone:           r.PostFormValue("phone"),
		Location:        r.PostFormValue("location"),
		PAN:             r.PostFormValue("pan"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}

	data := h.newPage(r, "Sign up")
	if err := h.accounts.SignUp(r.Context(), reg); err != nil {
		reg.Password, reg.ConfirmPassword = "", ""
		data.Registration = reg
		data.Message = account.UserMessage(err)
		data.MessageKind = string(domain.FeedbackError)

		var fe *account.FieldError
		status := http.StatusBadGateway
		if errors.As(err, &fe) {
			status = http.StatusUnprocessableEntity
		}
		h.pages.render(w, status, "sign_up", data)
		return
	}

	data.Message = account.MsgSignedUp
	data.MessageKind = string(domain.FeedbackSuccess)
	h.pages.render(w, http.StatusOK, "sign_up", data)
}

// SignInPage renders the sign-in form.
//
//	GET /sign-in
func (h *Handlers) SignInPage(w http.ResponseWriter, r *http.Request) {
	if h.sessions.GetSession(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.pages.render(w, http.StatusOK, "sign_in", h.newPage(r, "Sign in"))
}

// SignIn exchanges credentials for a browser session.
//
//	POST /sign-in
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	as, err := h.accounts.SignIn(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		data := h.newPage(r, "Sign in")
		data.Email = email
		data.Message = account.UserMessage(err)
		data.MessageKind = string(domain.FeedbackError)
		h.pages.render(w, http.StatusUnauthorized, "sign_in", data)
		return
	}

	if _, err := h.sessions.Create(r.Context(), w, as); err != nil {
		logger.Error("session create failed", "error", err)
		data := h.newPage(r, "Sign in")
		data.Email = email
		data.Message = account.MsgProviderFailure
		data.MessageKind = string(domain.FeedbackError)
		h.pages.render(w, http.StatusServiceUnavailable, "sign_in", data)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// SignOut ends the browser session and revokes the provider session.
//
//	POST /sign-out
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if sess := h.sessions.Destroy(w, r); sess != nil {
		h.accounts.SignOut(r.Context(), sess.AccessToken)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard renders the investment form, feedback and history.
//
//	GET /dashboard?theme=dark
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	h.pages.render(w, http.StatusOK, "dashboard", h.dashboardPage(r, sess, h.desk(sess)))
}

func (h *Handlers) dashboardPage(r *http.Request, sess *auth.Session, desk *investment.Desk) *pageData {
	id := sess.Identity()
	data := h.newPage(r, "Dashboard")
	data.Identity = &id
	data.Draft = desk.Form.Draft()
	data.Busy = desk.Workflow.State().InFlight()
	if fb, ok := desk.Presenter.Current(); ok {
		data.Feedback = &fb
		if d := desk.Presenter.Timeout(); d > 0 {
			data.DismissAfter = int((d + time.Second - 1) / time.Second)
		}
	}

	reader := h.history(sess)
	limit := h.limit(r)
	payments, err := reader.ListPayments(r.Context(), sess.UserID, limit)
	if err != nil {
		logger.Warn("dashboard: payment history unavailable", "error", err)
	}
	orders, err := reader.ListOrders(r.Context(), sess.UserID, limit)
	if err != nil {
		logger.Warn("dashboard: order history unavailable", "error", err)
	}
	data.Payments = payments
	data.Orders = orders
	return data
}

// SubmitPayment copies the posted fields into the draft, submits it and
// redirects back to the dashboard. While another attempt is in flight the
// draft belongs to it and the post is ignored.
//
//	POST /dashboard/payments
func (h *Handlers) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	desk := h.desk(sess)

	if err := r.ParseForm(); err != nil {
		logger.Warn("dashboard: malformed payment form", "error", err)
		data := h.dashboardPage(r, sess, desk)
		data.Message = MsgMalformedForm
		data.MessageKind = string(domain.FeedbackError)
		h.pages.render(w, http.StatusBadRequest, "dashboard", data)
		return
	}

	if desk.Workflow.State().InFlight() {
		http.Redirect(w, r, dashboardURL(r), http.StatusSeeOther)
		return
	}

	for _, f := range domain.Fields {
		if _, present := r.PostForm[string(f)]; present {
			_ = desk.Form.SetField(f, r.PostFormValue(string(f)))
		}
	}

	// Posting the form again acknowledges the previous outcome.
	if fb, ok := desk.Presenter.Current(); ok {
		desk.Presenter.Dismiss(fb.ID)
	}

	if _, err := h.submit(r.Context(), sess, desk); err != nil && !errors.Is(err, investment.ErrSubmissionInFlight) {
		logger.Debug("dashboard submission concluded with error", "error", err)
	}
	http.Redirect(w, r, dashboardURL(r), http.StatusSeeOther)
}

// DismissFeedbackPage dismisses feedback from the dashboard form.
//
//	POST /dashboard/feedback/{id}/dismiss
func (h *Handlers) DismissFeedbackPage(w http.ResponseWriter, r *http.Request) {
	desk := h.desk(auth.FromContext(r.Context()))
	desk.Presenter.Dismiss(chi.URLParam(r, "id"))
	http.Redirect(w, r, dashboardURL(r), http.StatusSeeOther)
}

// dashboardURL keeps a theme override across the redirect.
func dashboardURL(r *http.Request) string {
	switch t := r.URL.Query().Get("theme"); t {
	case "light", "dark":
		return "/dashboard?theme=" + t
	}
	return "/dashboard"
}
