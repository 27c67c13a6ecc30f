package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/clock"
	"github.com/neboloop/sessionkeeper/internal/credential"
	"github.com/neboloop/sessionkeeper/internal/diagnostics"
	"github.com/neboloop/sessionkeeper/internal/journal"
	"github.com/neboloop/sessionkeeper/internal/lifecycle"
	"github.com/neboloop/sessionkeeper/internal/logging"
	"github.com/neboloop/sessionkeeper/internal/metrics"
	"github.com/neboloop/sessionkeeper/internal/recovery"
	"github.com/neboloop/sessionkeeper/internal/session"
)

// runKeeper runs the keepalive loop until interrupted or the restart budget
// is exhausted, which is the only outcome reported as an error.
func runKeeper(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	c := *KeeperConfig
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	log, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logging.Sync()

	// Enforce single instance with lock file
	lockFile, err := acquireLock(DataDir)
	if err != nil {
		return fmt.Errorf("%w (is keeper already running?)", err)
	}
	defer releaseLock(lockFile)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := lifecycle.NewManager()

	var jr *journal.Journal
	if c.Journal.Enabled {
		jr, err = journal.Open(ctx, c.Journal.Path)
		if err != nil {
			log.Warn("journal disabled", zap.Error(err))
		} else {
			defer jr.Close()
			jr.Subscribe(events, log)
		}
	}

	met := metrics.New()
	met.Subscribe(events)
	if c.Metrics.Addr != "" {
		go func() {
			if err := met.Serve(ctx, c.Metrics.Addr, log); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	factory, err := newFactory(c, browserOptions(c), log)
	if err != nil {
		return err
	}
	store := openStore(c)
	snapshots := diagnostics.NewWriter(c.Diagnostics.Dir, c.Diagnostics.Keep, clock.Real{})

	var wake <-chan struct{}
	if c.Recovery.WatchCredentials {
		wake, err = credential.Watch(ctx, c.Credentials.Path)
		if err != nil {
			log.Warn("credential watch disabled", zap.Error(err))
		}
	}

	ctrl := &recovery.Controller{
		Budget: recovery.NewRetryBudget(c.Recovery.MaxAttempts, recovery.Linear{
			Step: c.Recovery.BackoffStep,
			Cap:  c.Recovery.BackoffCap,
		}),
		Clock:  clock.Real{},
		Log:    log,
		Events: events,
		Wake:   wake,
	}
	if jr != nil {
		ctrl.OnPanic = func(runID string, p any) {
			if err := jr.LogPanic(context.Background(), runID, p); err != nil {
				log.Warn("journal write failed", zap.Error(err))
			}
		}
	}

	log.Info("keeper starting",
		zap.String("target", c.Session.TargetURL),
		zap.String("driver", c.Browser.Driver),
		zap.String("credentials", c.Credentials.Path))

	err = ctrl.Run(ctx, func(a recovery.Attempt) (recovery.Runner, error) {
		return session.New(c, session.Deps{
			Factory:   factory,
			Store:     store,
			Snapshots: snapshots,
			Clock:     clock.Real{},
			Log:       log,
			Events:    events,
		}, a)
	})

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Info("keeper stopped")
		return nil
	case errors.Is(err, recovery.ErrBudgetExhausted):
		log.Error("terminal failure: giving up", zap.Error(err))
		return err
	default:
		return err
	}
}
