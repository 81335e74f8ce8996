package investment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/logger"
)

// State is a step of the submission state machine.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateResolvingIdentity
	StatePersisting
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateValidating:        "validating",
	StateResolvingIdentity: "resolving_identity",
	StatePersisting:        "persisting",
	StateSucceeded:         "succeeded",
	StateFailed:            "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// InFlight reports whether an attempt is between begin and conclusion.
func (s State) InFlight() bool {
	return s == StateValidating || s == StateResolvingIdentity || s == StatePersisting
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome labels reported to the Observer.
const (
	OutcomeSucceeded         = "succeeded"
	OutcomeValidationFailed  = "validation_failed"
	OutcomeUnauthenticated   = "unauthenticated"
	OutcomePersistenceFailed = "persistence_failed"
	OutcomeBusy              = "busy"
)

// Options tunes a Workflow.
type Options struct {
	// Timeout bounds identity resolution plus persistence. Zero means none.
	Timeout     time.Duration
	AmountRange AmountRange
	Hooks       []SubmittedHook
	Observer    Observer
}

// Result describes one concluded submission attempt.
type Result struct {
	State    State                 `json:"state"`
	Feedback *domain.Feedback      `json:"feedback,omitempty"`
	Record   *domain.PaymentRecord `json:"record,omitempty"`
}

// Workflow is the submission state machine for one Form.
type Workflow struct {
	mu        sync.Mutex
	state     State
	form      *Form
	presenter *Presenter
	provider  SessionProvider
	opts      Options
}

// NewWorkflow wires a workflow to its form, presenter and session provider.
func NewWorkflow(form *Form, presenter *Presenter, provider SessionProvider, opts Options) *Workflow {
	w := &Workflow{
		form:      form,
		presenter: presenter,
		provider:  provider,
		opts:      opts,
	}
	presenter.OnDismiss(w.feedbackDismissed)
	return w
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Submit runs one attempt: validate, resolve identity, persist, present.
// It returns ErrSubmissionInFlight without side effects unless the
// workflow is Idle.
func (w *Workflow) Submit(ctx context.Context) (Result, error) {
	if !w.begin() {
		w.observe(OutcomeBusy, time.Now())
		return Result{State: w.State()}, ErrSubmissionInFlight
	}
	start := time.Now()

	draft := w.form.Draft()
	if verr := validateDraft(draft, w.opts.AmountRange); verr != nil {
		return w.fail(verr, OutcomeValidationFailed, start)
	}

	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	w.setState(StateResolvingIdentity)
	who, err := w.provider.CurrentIdentity(ctx)
	if err != nil || who == nil {
		if err != nil {
			logger.Warn("identity lookup failed", "error", err)
		}
		return w.fail(&AuthenticationError{Cause: err}, OutcomeUnauthenticated, start)
	}

	w.setState(StatePersisting)
	rec := domain.NewPaymentRecord(draft, *who)
	if err := w.provider.InsertPayment(ctx, rec); err != nil {
		logger.Error("payment insert failed", "user_id", who.UserID, "utr", rec.UTR, "error", err)
		return w.fail(&PersistenceError{Cause: err}, OutcomePersistenceFailed, start)
	}

	w.form.Reset()
	// The state must be Succeeded before the feedback timer can fire.
	w.setState(StateSucceeded)
	fb := w.presenter.Present(domain.FeedbackSuccess, MsgSubmitted, true)
	w.observe(OutcomeSucceeded, start)
	logger.Info("payment submitted", "user_id", who.UserID, "email", who.Email, "utr", rec.UTR)

	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range w.opts.Hooks {
		go hook(hookCtx, rec)
	}

	return Result{State: StateSucceeded, Feedback: &fb, Record: &rec}, nil
}

func (w *Workflow) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return false
	}
	w.state = StateValidating
	return true
}

func (w *Workflow) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Workflow) fail(err error, outcome string, start time.Time) (Result, error) {
	w.setState(StateFailed)
	fb := w.presenter.Present(domain.FeedbackError, UserMessage(err), false)
	w.observe(outcome, start)

	var ve *ValidationError
	if errors.As(err, &ve) {
		logger.Debug("submission rejected", "field", string(ve.Field))
	}
	return Result{State: StateFailed, Feedback: &fb}, err
}

// feedbackDismissed returns a concluded workflow to Idle.
func (w *Workflow) feedbackDismissed(domain.Feedback) {
	w.mu.Lock()
	if w.state == StateSucceeded || w.state == StateFailed {
		w.state = StateIdle
	}
	w.mu.Unlock()
}

func (w *Workflow) observe(outcome string, start time.Time) {
	if w.opts.Observer != nil {
		w.opts.Observer.SubmissionFinished(outcome, time.Since(start).Seconds())
	}
}
