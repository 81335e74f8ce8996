package investment

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/investwise/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenter_AutoDismiss(t *testing.T) {
	p := NewPresenter(20 * time.Millisecond)
	var dismissed atomic.Int32
	p.OnDismiss(func(domain.Feedback) { dismissed.Add(1) })

	fb := p.Present(domain.FeedbackSuccess, "ok", true)
	cur, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, fb.ID, cur.ID)
	assert.True(t, cur.Celebrate)

	require.Eventually(t, func() bool {
		_, ok := p.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), dismissed.Load())
}

func TestPresenter_StaleTimerDoesNotClearNewerFeedback(t *testing.T) {
	p := NewPresenter(40 * time.Millisecond)

	first := p.Present(domain.FeedbackError, "first", false)
	time.Sleep(25 * time.Millisecond)
	second := p.Present(domain.FeedbackError, "second", false)

	// The first instance's deadline passes here; the second must survive it.
	time.Sleep(25 * time.Millisecond)
	cur, ok := p.Current()
	require.True(t, ok, "newer feedback cleared by stale timer")
	assert.Equal(t, second.ID, cur.ID)

	assert.False(t, p.Dismiss(first.ID))
	assert.True(t, p.Dismiss(second.ID))
	_, ok = p.Current()
	assert.False(t, ok)
}

func TestPresenter_ManualDismissOnly(t *testing.T) {
	p := NewPresenter(0)
	fb := p.Present(domain.FeedbackSuccess, "stay", false)

	time.Sleep(20 * time.Millisecond)
	_, ok := p.Current()
	require.True(t, ok)

	assert.True(t, p.Dismiss(fb.ID))
	assert.False(t, p.Dismiss(fb.ID), "second dismiss of the same instance")
}

func TestPresenter_CloseStopsTimerWithoutCallback(t *testing.T) {
	p := NewPresenter(10 * time.Millisecond)
	var called atomic.Bool
	p.OnDismiss(func(domain.Feedback) { called.Store(true) })

	p.Present(domain.FeedbackError, "bye", false)
	p.Close()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, called.Load())
}
