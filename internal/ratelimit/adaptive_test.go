package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestAdaptive() *AdaptiveRPS {
	a := NewAdaptive(AdaptiveConfig{RPS: 0.5, MinRPS: 0.1, MaxRPS: 1.0})
	a.sleep = func(time.Duration) {}
	a.jitter = func() time.Duration { return 0 }
	return a
}

func feedbackN(a *AdaptiveRPS, status, n int) {
	for i := 0; i < n; i++ {
		a.Feedback(status)
	}
}

func TestFeedbackHalvesOnErrors(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	feedbackN(a, 429, 2)
	assert.InDelta(t, 0.5, a.RPS(), 1e-9)

	a.Feedback(429)
	assert.InDelta(t, 0.25, a.RPS(), 1e-9)

	// The window cleared after the adjustment, so the next halving
	// takes three fresh errors.
	feedbackN(a, 503, 2)
	assert.InDelta(t, 0.25, a.RPS(), 1e-9)
	a.Feedback(403)
	assert.InDelta(t, 0.125, a.RPS(), 1e-9)
}

func TestFeedbackClampsAtMinRPS(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	for i := 0; i < 10; i++ {
		feedbackN(a, 429, 3)
	}
	assert.InDelta(t, 0.1, a.RPS(), 1e-9)
}

func TestFeedbackEasesUpAfterCleanWindow(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	feedbackN(a, 200, 19)
	assert.InDelta(t, 0.5, a.RPS(), 1e-9)

	a.Feedback(200)
	assert.InDelta(t, 0.6, a.RPS(), 1e-9)
}

func TestFeedbackClampsAtMaxRPS(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	for i := 0; i < 10; i++ {
		feedbackN(a, 200, 20)
	}
	assert.InDelta(t, 1.0, a.RPS(), 1e-9)
}

func TestFeedbackErrorAnywhereInWindowBlocksIncrease(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	feedbackN(a, 200, 10)
	a.Feedback(429)
	feedbackN(a, 200, 9)
	assert.InDelta(t, 0.5, a.RPS(), 1e-9)
}

func TestNonRateLimitErrorsDoNotCount(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	feedbackN(a, 404, 5)
	feedbackN(a, 500, 5)
	assert.InDelta(t, 0.5, a.RPS(), 1e-9)
}

func TestWaitSpacingAndJitter(t *testing.T) {
	t.Parallel()
	a := NewAdaptive(AdaptiveConfig{RPS: 2.0, MinRPS: 0.1, MaxRPS: 4.0})

	var slept []time.Duration
	now := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return now }
	a.sleep = func(d time.Duration) { slept = append(slept, d) }
	a.jitter = func() time.Duration { return 300 * time.Millisecond }

	// First request: no previous request, interval already elapsed,
	// only jitter applies.
	a.Wait()
	// Second request at the same instant: full 500ms interval + jitter.
	a.Wait()

	assert.Len(t, slept, 2)
	assert.Equal(t, 300*time.Millisecond, slept[0])
	assert.Equal(t, 800*time.Millisecond, slept[1])
}

func TestGetStatus(t *testing.T) {
	t.Parallel()
	a := newTestAdaptive()

	feedbackN(a, 200, 4)
	a.Feedback(429)

	status := a.GetStatus()
	assert.InDelta(t, 0.5, status.CurrentRPS, 1e-9)
	assert.InDelta(t, 0.1, status.MinRPS, 1e-9)
	assert.InDelta(t, 1.0, status.MaxRPS, 1e-9)
	assert.Equal(t, 1, status.RecentErrors)
	assert.Equal(t, 5, status.WindowRequests)

	// Both counters describe the feedback window, so an adjustment
	// empties them together.
	a.Feedback(429)
	a.Feedback(429)
	status = a.GetStatus()
	assert.Equal(t, 0, status.RecentErrors)
	assert.Equal(t, 0, status.WindowRequests)
}

func TestNewAdaptiveDefaults(t *testing.T) {
	t.Parallel()
	a := NewAdaptive(AdaptiveConfig{})
	assert.InDelta(t, 0.5, a.RPS(), 1e-9)

	status := a.GetStatus()
	assert.InDelta(t, 0.1, status.MinRPS, 1e-9)
	assert.InDelta(t, 1.0, status.MaxRPS, 1e-9)
}
