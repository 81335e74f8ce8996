package domain

import "time"

// FeedbackKind tags a feedback message as a success or an error.
type FeedbackKind string

const (
	FeedbackSuccess FeedbackKind = "success"
	FeedbackError   FeedbackKind = "error"
)

// Feedback is a transient message shown after a submission attempt concludes.
type Feedback struct {
	ID        string       `json:"id"`
	Kind      FeedbackKind `json:"kind"`
	Message   string       `json:"message"`
	Celebrate bool         `json:"celebrate,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
