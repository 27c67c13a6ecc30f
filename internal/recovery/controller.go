// Package recovery restarts failed orchestrators within a bounded budget and
// rebuilds broken browser sessions in place.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/clock"
	"github.com/neboloop/sessionkeeper/internal/lifecycle"
)

var (
	// ErrBudgetExhausted ends the process with a non-zero status.
	ErrBudgetExhausted = errors.New("restart budget exhausted")
	// ErrPanic wraps a recovered orchestrator panic.
	ErrPanic = errors.New("orchestrator panicked")
	// ErrStopped is reported when an orchestrator returns without error
	// while the context is still live.
	ErrStopped = errors.New("orchestrator stopped unexpectedly")
)

// Runner is one orchestrator instance.
type Runner interface {
	Run(ctx context.Context) error
}

// Attempt describes an orchestrator start.
type Attempt struct {
	RunID  string
	Number int
	// OnConnected must be called each time the session reaches Connected.
	OnConnected func()
	// Charge spends one attempt of the shared budget for an in-session
	// recovery cycle that did not reconnect.
	Charge func() (wait time.Duration, exhausted bool)
}

// Controller runs orchestrators until the context ends or the budget runs out.
type Controller struct {
	Budget *RetryBudget
	Clock  clock.Clock
	Log    *zap.Logger
	Events *lifecycle.Manager
	// Wake, when set, cuts a backoff wait short.
	Wake <-chan struct{}
	// OnPanic is told about recovered panics.
	OnPanic func(runID string, p any)
}

// Run starts orchestrators built by newRunner. It returns ctx.Err() on
// cancellation and an error wrapping ErrBudgetExhausted when attempts run out.
func (c *Controller) Run(ctx context.Context, newRunner func(Attempt) (Runner, error)) error {
	clk := c.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("recovery")

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt := Attempt{
			RunID:       uuid.NewString(),
			Number:      n,
			OnConnected: c.Budget.Reset,
			Charge:      c.Budget.Fail,
		}
		log.Info("starting orchestrator",
			zap.String("run_id", attempt.RunID),
			zap.Int("start", n),
			zap.Int("failed_attempts", c.Budget.Attempts()))

		runner, err := newRunner(attempt)
		if err == nil {
			err = c.runSafely(ctx, runner, attempt.RunID, log)
		}
		if ctx.Err() != nil {
			log.Info("orchestrator stopped", zap.String("run_id", attempt.RunID))
			return ctx.Err()
		}
		if err == nil {
			err = ErrStopped
		}

		// In-session recovery has already spent the last attempt.
		var (
			wait      time.Duration
			exhausted = errors.Is(err, ErrRecoveryExhausted)
		)
		if !exhausted {
			wait, exhausted = c.Budget.Fail()
		}
		data := lifecycle.RestartData{
			RunID:   attempt.RunID,
			Attempt: c.Budget.Attempts(),
			Max:     c.Budget.Max(),
			Wait:    wait,
			Err:     err,
			At:      clk.Now(),
		}
		if exhausted {
			log.Error("restart budget exhausted, giving up",
				zap.String("run_id", attempt.RunID),
				zap.Int("attempts", data.Attempt),
				zap.Error(err))
			c.Events.Emit(lifecycle.EventTerminal, data)
			return fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, data.Attempt, err)
		}

		log.Warn("orchestrator failed, restarting",
			zap.String("run_id", attempt.RunID),
			zap.Int("attempt", data.Attempt),
			zap.Int("max", data.Max),
			zap.Duration("wait", wait),
			zap.Error(err))
		c.Events.Emit(lifecycle.EventRestart, data)

		if err := c.wait(ctx, clk, wait, log); err != nil {
			return err
		}
	}
}

func (c *Controller) runSafely(ctx context.Context, r Runner, runID string, log *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("orchestrator panic", zap.String("run_id", runID), zap.Any("panic", p), zap.Stack("stack"))
			if c.OnPanic != nil {
				c.OnPanic(runID, p)
			}
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return r.Run(ctx)
}

// wait sleeps d, returning early without error when Wake fires.
func (c *Controller) wait(ctx context.Context, clk clock.Clock, d time.Duration, log *zap.Logger) error {
	if c.Wake == nil {
		return clk.Sleep(ctx, d)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	woke := make(chan struct{})
	go func() {
		select {
		case _, ok := <-c.Wake:
			if !ok {
				// A closed watcher never cuts the backoff short.
				return
			}
			close(woke)
			cancel()
		case <-wctx.Done():
		}
	}()

	_ = clk.Sleep(wctx, d)
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-woke:
		log.Info("credentials changed, restarting early")
	default:
	}
	return nil
}
