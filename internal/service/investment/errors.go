package investment

import (
	"errors"

	"github.com/ignite/investwise/internal/domain"
)

// Sentinel errors for the investment service layer.
var (
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrUnknownField       = errors.New("unknown form field")
	ErrFeedbackNotFound   = errors.New("feedback not found or already dismissed")
)

// User-facing messages. Technical detail never reaches the user.
const (
	MsgNotLoggedIn      = "You are not logged in. Please sign in and try again."
	MsgSubmissionFailed = "Submission failed. Please try again."
	MsgSubmitted        = "Payment details submitted! Our team will verify your transaction shortly."
)

// ValidationError reports a draft field with a bad format. No network call
// is made when it is returned.
type ValidationError struct {
	Field   domain.Field
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthenticationError reports that no identity could be resolved.
type AuthenticationError struct {
	Cause error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return "not logged in: " + e.Cause.Error()
	}
	return "not logged in"
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// PersistenceError reports a failed insert. The draft is preserved so the
// user can resubmit.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return "persist payment: " + e.Cause.Error()
	}
	return "persist payment"
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// UserMessage returns the short message shown for err.
func UserMessage(err error) string {
	var ve *ValidationError
	var ae *AuthenticationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &ae):
		return MsgNotLoggedIn
	case errors.Is(err, ErrSubmissionInFlight):
		return "Your previous submission is still being processed."
	default:
		return MsgSubmissionFailed
	}
}
