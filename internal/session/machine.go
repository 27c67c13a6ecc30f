// Package session drives one remote notebook session through its lifecycle:
// open, authenticate with stored credentials, connect the runtime, keep it
// busy and recover it in place when it drops.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/activity"
	"github.com/neboloop/sessionkeeper/internal/browser"
	"github.com/neboloop/sessionkeeper/internal/clock"
	"github.com/neboloop/sessionkeeper/internal/config"
	"github.com/neboloop/sessionkeeper/internal/credential"
	"github.com/neboloop/sessionkeeper/internal/detect"
	"github.com/neboloop/sessionkeeper/internal/diagnostics"
	"github.com/neboloop/sessionkeeper/internal/lifecycle"
	"github.com/neboloop/sessionkeeper/internal/recovery"
)

var (
	// ErrAuthenticationRequired means the stored credentials no longer open
	// the notebook and a human has to run `keeper login`.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrCapability wraps a failure to start the browser.
	ErrCapability = errors.New("browser capability unavailable")
)

// Deps are the collaborators a Machine needs.
type Deps struct {
	Factory   browser.Factory
	Store     credential.Store
	Detector  detect.Detector
	Snapshots activity.SnapshotSink
	Clock     clock.Clock
	Log       *zap.Logger
	Events    *lifecycle.Manager
	Rand      *rand.Rand
}

// Machine is one orchestrator instance. Run it once.
type Machine struct {
	cfg         config.Config
	deps        Deps
	runID       string
	onConnected func()

	clock    clock.Clock
	log      *zap.Logger
	detector detect.Detector
	locator  *Locator
	intra    *recovery.IntraSession

	state State
	err   error
	cap   browser.Capability
}

func New(cfg config.Config, deps Deps, attempt recovery.Attempt) (*Machine, error) {
	if deps.Factory == nil || deps.Store == nil {
		return nil, errors.New("browser factory and credential store are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Detector == nil {
		deps.Detector = NewDetector(cfg.Handshake)
	}

	locator, err := NewLocator(cfg.Session.LoginPatterns, cfg.Session.TargetPatterns)
	if err != nil {
		return nil, err
	}

	log := deps.Log.Named("session").With(zap.String("run_id", attempt.RunID))
	return &Machine{
		cfg:         cfg,
		deps:        deps,
		runID:       attempt.RunID,
		onConnected: attempt.OnConnected,
		clock:       deps.Clock,
		log:         log,
		detector:    deps.Detector,
		locator:     locator,
		intra: &recovery.IntraSession{
			Cooldown: cfg.Recovery.Cooldown,
			Charge:   attempt.Charge,
			Clock:    deps.Clock,
			Log:      log,
		},
		state: Disconnected,
	}, nil
}

func (m *Machine) State() State { return m.state }

// Run drives the session until ctx is done or a fatal condition occurs:
// ErrAuthenticationRequired, ErrCapability or recovery.ErrRecoveryExhausted.
// Cancellation returns ctx.Err(). The browser is always closed on return.
func (m *Machine) Run(ctx context.Context) error {
	defer m.closeCapability()

	m.transition(Opening, "start")
	for !m.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch m.state {
		case Opening:
			next, reason, err := m.open(ctx)
			if err != nil {
				return err
			}
			m.transition(next, reason)

		case AwaitingAuthentication:
			m.log.Error("stored credentials were not accepted; run `keeper login`")
			m.fail(ErrAuthenticationRequired, "login required")

		case Connecting:
			if err := m.handshake(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.transition(Degraded, err.Error())
				continue
			}
			m.transition(Connected, "runtime handshake succeeded")

		case Connected:
			err := m.connected(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				err = errors.New("activity loop ended")
			}
			m.transition(Degraded, err.Error())

		case Degraded:
			m.degradedSnapshot(ctx)
			m.transition(Recovering, "degraded")

		case Recovering:
			err := m.intra.Recover(ctx, m.cap)
			m.cap = nil
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				m.fail(err, err.Error())
				continue
			}
			m.transition(Opening, "cooldown elapsed")

		default:
			return fmt.Errorf("unexpected state %s", m.state)
		}
	}
	return m.err
}

// fail records the fatal error Run returns and enters Failed.
func (m *Machine) fail(err error, reason string) {
	m.err = err
	m.transition(Failed, reason)
}

func (m *Machine) transition(to State, reason string) {
	from := m.state
	m.state = to
	m.log.Info("state transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("reason", reason))
	m.deps.Events.Emit(lifecycle.EventTransition, lifecycle.TransitionData{
		RunID:  m.runID,
		From:   from.String(),
		To:     to.String(),
		Reason: reason,
		At:     m.clock.Now(),
	})
}

func (m *Machine) fault(op string, err error) {
	m.deps.Events.Emit(lifecycle.EventFault, lifecycle.FaultData{
		RunID: m.runID,
		Op:    op,
		Err:   err,
		At:    m.clock.Now(),
	})
}

// open builds a fresh browser, injects stored credentials and navigates.
// Only a browser construction failure is returned as an error; every other
// problem becomes a transition to Degraded.
func (m *Machine) open(ctx context.Context) (State, string, error) {
	c, err := m.deps.Factory(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", fmt.Errorf("%w: %w", ErrCapability, err)
	}
	m.cap = c

	bundle, ok, err := m.deps.Store.Load(ctx)
	if err != nil {
		m.log.Warn("stored credentials unreadable, continuing without them", zap.Error(err))
		ok = false
	}
	if ok && !bundle.Empty() {
		if err := activity.BestEffort(ctx, m.log, "inject_tokens", func(ctx context.Context) error {
			return m.cap.InjectTokens(ctx, bundle)
		}); err != nil {
			m.fault("inject_tokens", err)
		} else {
			m.log.Info("credentials injected", zap.Int("tokens", len(bundle)))
		}
	} else {
		m.log.Info("no stored credentials")
	}

	landing, err := m.cap.Open(ctx, m.cfg.Session.TargetURL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return Degraded, "navigation failed: " + err.Error(), nil
	}
	if err := m.clock.Sleep(ctx, m.cfg.Handshake.OpenSettle); err != nil {
		return 0, "", err
	}
	if loc, err := m.cap.CurrentLocation(ctx); err == nil && loc != "" {
		landing = loc
	}

	switch m.locator.Classify(landing) {
	case LandingLogin:
		return AwaitingAuthentication, "landed on login page " + landing, nil
	case LandingTarget:
		return Connecting, "landed on notebook", nil
	default:
		return Degraded, "unexpected location " + landing, nil
	}
}

// connected persists fresh credentials, resets the retry counters and runs
// the activity loop. It returns why the session left Connected.
func (m *Machine) connected(ctx context.Context) error {
	m.saveCredentials(ctx)
	if m.onConnected != nil {
		m.onConnected()
	}
	m.intra.Connected()

	a := m.cfg.Activity
	sched, err := activity.NewScheduler(activity.Config{
		Quantum:            a.Quantum,
		HumanMin:           a.HumanMin,
		HumanMax:           a.HumanMax,
		HealthSchedule:     a.HealthSchedule,
		SnapshotSchedule:   a.SnapshotSchedule,
		RefreshProbability: a.RefreshProbability,
		RefreshSettle:      m.cfg.Handshake.RefreshSettle,
		ViewportWidth:      m.cfg.Browser.Window.Width,
		ViewportHeight:     m.cfg.Browser.Window.Height,
	}, activity.Deps{
		Browser:     m.cap,
		Detector:    m.detector,
		Snapshots:   m.deps.Snapshots,
		Rehandshake: m.handshake,
		Clock:       m.clock,
		Log:         m.log,
		Events:      m.deps.Events,
		RunID:       m.runID,
		Rand:        m.deps.Rand,
	})
	if err != nil {
		return fmt.Errorf("activity scheduler: %w", err)
	}
	return sched.Run(ctx)
}

// saveCredentials never replaces a stored bundle with an empty one.
func (m *Machine) saveCredentials(ctx context.Context) {
	err := activity.BestEffort(ctx, m.log, "save_credentials", func(ctx context.Context) error {
		bundle, err := m.cap.ExtractTokens(ctx)
		if err != nil {
			return fmt.Errorf("extract tokens: %w", err)
		}
		if bundle.Empty() {
			m.log.Warn("browser returned no tokens; keeping stored credentials")
			return nil
		}
		if err := m.deps.Store.Save(ctx, bundle); err != nil {
			return err
		}
		m.log.Info("credentials saved", zap.Int("tokens", len(bundle)))
		m.deps.Events.Emit(lifecycle.EventCredentialsSaved, lifecycle.ActivityData{
			RunID:  m.runID,
			Kind:   "credentials",
			Detail: fmt.Sprintf("%d tokens", len(bundle)),
			At:     m.clock.Now(),
		})
		return nil
	})
	if err != nil && ctx.Err() == nil {
		m.fault("save_credentials", err)
	}
}

func (m *Machine) degradedSnapshot(ctx context.Context) {
	if m.cap == nil || m.deps.Snapshots == nil {
		return
	}
	err := activity.BestEffort(ctx, m.log, "degraded_snapshot", func(ctx context.Context) error {
		png, err := m.cap.Snapshot(ctx)
		if err != nil {
			return err
		}
		path, err := m.deps.Snapshots.Save(ctx, diagnostics.NameDegraded, png)
		if err != nil {
			return err
		}
		m.deps.Events.Emit(lifecycle.EventSnapshot, lifecycle.ActivityData{
			RunID:  m.runID,
			Kind:   diagnostics.NameDegraded,
			Detail: path,
			At:     m.clock.Now(),
		})
		return nil
	})
	if err != nil && ctx.Err() == nil {
		m.fault("degraded_snapshot", err)
	}
}

func (m *Machine) closeCapability() {
	if m.cap == nil {
		return
	}
	if err := m.cap.Close(); err != nil && !errors.Is(err, browser.ErrClosed) {
		m.log.Warn("closing browser failed", zap.Error(err))
	}
	m.cap = nil
}
