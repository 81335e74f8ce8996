package account

import (
	"errors"
)

// Sentinel errors for the account service layer.
var (
	ErrLookupFailed = errors.New("error checking existing users")
)

// Messages shown after account actions.
const (
	MsgSignedUp        = "Signup successful! Check your email to verify your account."
	MsgLookupFailed    = "Error checking existing users."
	MsgProviderFailure = "Something went wrong. Please try again."
)

// FieldError rejects one registration field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// ProviderError wraps an error returned by the auth provider.
type ProviderError struct {
	Cause error
}

func (e *ProviderError) Error() string { return "auth provider: " + e.Cause.Error() }

func (e *ProviderError) Unwrap() error { return e.Cause }

// userMessager is implemented by provider errors that carry a message fit
// for end users.
type userMessager interface {
	UserMessage() string
}

// UserMessage returns the short message shown for err.
func UserMessage(err error) string {
	var fe *FieldError
	var um userMessager
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return fe.Message
	case errors.Is(err, ErrLookupFailed):
		return MsgLookupFailed
	case errors.As(err, &um) && um.UserMessage() != "":
		return um.UserMessage()
	default:
		return MsgProviderFailure
	}
}
