package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/browser"
	"github.com/neboloop/sessionkeeper/internal/clock"
)

// ErrRecoveryExhausted is returned when a recovery cycle that did not reach
// Connected spends the last process-level attempt.
var ErrRecoveryExhausted = errors.New("intra-session recovery exhausted")

// IntraSession discards a broken browser and waits before the session is
// reopened. Recoveries are unbounded while the session keeps reconnecting;
// each cycle that ends without reaching Connected is charged to the
// process-level budget.
type IntraSession struct {
	Cooldown time.Duration
	// Charge spends one process-level attempt and returns its backoff.
	// Nil charges nothing.
	Charge func() (wait time.Duration, exhausted bool)
	Clock  clock.Clock
	Log    *zap.Logger

	reached bool
	failed  int
}

// Recover closes c (which may be nil) and sleeps the cooldown, or the
// budget's backoff when that is longer.
func (r *IntraSession) Recover(ctx context.Context, c browser.Capability) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	if c != nil {
		if err := c.Close(); err != nil && !errors.Is(err, browser.ErrClosed) {
			log.Warn("closing browser failed", zap.Error(err))
		}
	}

	wait := r.Cooldown
	if !r.reached {
		r.failed++
		if r.Charge != nil {
			backoff, exhausted := r.Charge()
			if exhausted {
				return fmt.Errorf("%w: %d recoveries without reconnecting", ErrRecoveryExhausted, r.failed)
			}
			wait = max(wait, backoff)
		}
	}
	r.reached = false

	log.Info("recovering session",
		zap.Int("failed_cycles", r.failed),
		zap.Duration("wait", wait))

	clk := r.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return clk.Sleep(ctx, wait)
}

// Connected marks the current cycle as successful.
func (r *IntraSession) Connected() {
	r.reached = true
	r.failed = 0
}

// Failed is the number of cycles since the last Connected that never got there.
func (r *IntraSession) Failed() int { return r.failed }
