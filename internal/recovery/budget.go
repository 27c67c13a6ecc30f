package recovery

import (
	"sync"
	"time"
)

// Backoff maps a failure count to a wait.
type Backoff interface {
	Wait(attempt int) time.Duration
}

// Linear waits attempt*Step, capped at Cap.
type Linear struct {
	Step time.Duration
	Cap  time.Duration
}

func (l Linear) Wait(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := time.Duration(attempt) * l.Step
	if l.Cap > 0 && d > l.Cap {
		return l.Cap
	}
	return d
}

// RetryBudget counts fatal failures of consecutive orchestrator attempts.
type RetryBudget struct {
	mu       sync.Mutex
	attempts int
	max      int
	backoff  Backoff
}

func NewRetryBudget(max int, backoff Backoff) *RetryBudget {
	return &RetryBudget{max: max, backoff: backoff}
}

// Fail records a fatal failure. Once attempts reach the maximum it reports
// exhausted and no wait; otherwise it returns the backoff for the new count.
func (b *RetryBudget) Fail() (wait time.Duration, exhausted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.attempts >= b.max {
		return 0, true
	}
	return b.backoff.Wait(b.attempts), false
}

// Reset is called when a session reaches Connected.
func (b *RetryBudget) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

func (b *RetryBudget) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *RetryBudget) Max() int { return b.max }
