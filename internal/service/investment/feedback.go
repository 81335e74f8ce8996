package investment

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/investwise/internal/domain"
)

// Presenter holds at most one feedback message. Each presented instance gets
// its own timer; dismissal is keyed by instance ID so a stale timer can
// never clear a newer message.
type Presenter struct {
	mu        sync.Mutex
	timeout   time.Duration
	current   *domain.Feedback
	timer     *time.Timer
	onDismiss func(domain.Feedback)
}

// NewPresenter creates a presenter. A timeout of zero disables auto-dismiss.
func NewPresenter(timeout time.Duration) *Presenter {
	return &Presenter{timeout: timeout}
}

// OnDismiss registers the callback run after a feedback instance is cleared.
func (p *Presenter) OnDismiss(fn func(domain.Feedback)) {
	p.mu.Lock()
	p.onDismiss = fn
	p.mu.Unlock()
}

// Present replaces the current feedback and arms its auto-dismiss timer.
func (p *Presenter) Present(kind domain.FeedbackKind, message string, celebrate bool) domain.Feedback {
	fb := domain.Feedback{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		Celebrate: celebrate,
		CreatedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTimer()
	p.current = &fb
	if p.timeout > 0 {
		id := fb.ID
		p.timer = time.AfterFunc(p.timeout, func() { p.Dismiss(id) })
	}
	return fb
}

// Dismiss clears the feedback if id still names the current instance.
func (p *Presenter) Dismiss(id string) bool {
	p.mu.Lock()
	if p.current == nil || p.current.ID != id {
		p.mu.Unlock()
		return false
	}
	fb := *p.current
	p.current = nil
	p.stopTimer()
	cb := p.onDismiss
	p.mu.Unlock()

	if cb != nil {
		cb(fb)
	}
	return true
}

// Current returns the feedback being shown, if any.
func (p *Presenter) Current() (domain.Feedback, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domain.Feedback{}, false
	}
	return *p.current, true
}

// Timeout returns the auto-dismiss delay.
func (p *Presenter) Timeout() time.Duration { return p.timeout }

// Close cancels any outstanding timer without running the dismiss callback.
func (p *Presenter) Close() {
	p.mu.Lock()
	p.stopTimer()
	p.mu.Unlock()
}

// stopTimer must be called with p.mu held.
func (p *Presenter) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
