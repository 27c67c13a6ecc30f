// Package activity runs the keepalive loop for a connected session: synthetic
// human interaction, health polling, diagnostic snapshots and the occasional
// forced refresh, all from a single goroutine.
package activity

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/browser"
	"github.com/neboloop/sessionkeeper/internal/clock"
	"github.com/neboloop/sessionkeeper/internal/detect"
	"github.com/neboloop/sessionkeeper/internal/diagnostics"
	"github.com/neboloop/sessionkeeper/internal/lifecycle"
)

var (
	// ErrDegraded is returned when the health poll finds the runtime disconnected.
	ErrDegraded = errors.New("runtime disconnected")
	// ErrRefreshFailed is returned when a forced refresh or its handshake fails.
	ErrRefreshFailed = errors.New("forced refresh failed")
)

// Timer names, in firing order.
const (
	TimerHuman    = "human_activity"
	TimerHealth   = "health_poll"
	TimerSnapshot = "snapshot"
	TimerRefresh  = "forced_refresh"
)

// Config holds the scheduler settings.
type Config struct {
	Quantum            time.Duration
	HumanMin           time.Duration
	HumanMax           time.Duration
	HealthSchedule     string
	SnapshotSchedule   string
	RefreshProbability float64
	RefreshSettle      time.Duration
	ViewportWidth      int
	ViewportHeight     int
}

// SnapshotSink persists a PNG under a name and returns where it went.
type SnapshotSink interface {
	Save(ctx context.Context, name string, png []byte) (string, error)
}

// Deps are the collaborators the scheduler acts on.
type Deps struct {
	Browser   browser.Capability
	Detector  detect.Detector
	Snapshots SnapshotSink
	// Rehandshake re-runs the runtime-connect handshake after a refresh.
	Rehandshake func(ctx context.Context) error
	Clock       clock.Clock
	Log         *zap.Logger
	Events      *lifecycle.Manager
	RunID       string
	// Rand seeds the random policies. Nil uses a time-seeded PCG.
	Rand *rand.Rand
}

// Scheduler is the cooperative activity loop. It is not safe for concurrent use.
type Scheduler struct {
	cfg    Config
	deps   Deps
	rng    *rand.Rand
	log    *zap.Logger
	timers []*Timer
}

func NewScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Quantum <= 0 {
		return nil, fmt.Errorf("quantum must be positive, got %s", cfg.Quantum)
	}
	if deps.Browser == nil || deps.Detector == nil {
		return nil, errors.New("browser and detector are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	rng := deps.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}

	health, err := ParsePolicy(cfg.HealthSchedule)
	if err != nil {
		return nil, err
	}
	snapshot, err := ParsePolicy(cfg.SnapshotSchedule)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:  cfg,
		deps: deps,
		rng:  rng,
		log:  deps.Log.Named("activity"),
		timers: []*Timer{
			{Name: TimerHuman, Policy: NewUniform(cfg.HumanMin, cfg.HumanMax, rng)},
			{Name: TimerHealth, Policy: health},
			{Name: TimerSnapshot, Policy: snapshot},
			{Name: TimerRefresh, Policy: NewProbability(cfg.RefreshProbability, rng)},
		},
	}, nil
}

// Timers exposes the timers in firing order.
func (s *Scheduler) Timers() []*Timer {
	return s.timers
}

// Run loops until the health poll reports degradation (ErrDegraded), a
// forced refresh fails (ErrRefreshFailed), or ctx is done (ctx.Err()).
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.deps.Clock.Now()
	for _, t := range s.timers {
		t.LastFired = start
	}
	s.log.Info("activity loop started",
		zap.Duration("quantum", s.cfg.Quantum),
		zap.Float64("refresh_probability", s.cfg.RefreshProbability))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.tick(ctx); err != nil {
			return err
		}
		if err := s.deps.Clock.Sleep(ctx, s.cfg.Quantum); err != nil {
			return err
		}
	}
}

// tick fires every due timer. lastFired advances before the action's
// outcome is considered.
func (s *Scheduler) tick(ctx context.Context) error {
	now := s.deps.Clock.Now()
	for _, t := range s.timers {
		if !t.due(now) {
			continue
		}
		t.fired(now)

		var err error
		switch t.Name {
		case TimerHuman:
			s.humanActivity(ctx)
		case TimerHealth:
			err = s.healthPoll(ctx)
		case TimerSnapshot:
			s.snapshot(ctx)
		case TimerRefresh:
			err = s.refresh(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) bestEffort(ctx context.Context, name string, fn func(context.Context) error) {
	if err := BestEffort(ctx, s.log, name, fn); err != nil && ctx.Err() == nil {
		s.deps.Events.Emit(lifecycle.EventFault, lifecycle.FaultData{
			RunID: s.deps.RunID,
			Op:    name,
			Err:   err,
			At:    s.deps.Clock.Now(),
		})
	}
}

func (s *Scheduler) humanActivity(ctx context.Context) {
	s.bestEffort(ctx, TimerHuman, func(ctx context.Context) error {
		detail, err := s.human(ctx)
		if err != nil {
			return err
		}
		s.log.Debug("human activity", zap.String("action", detail))
		s.deps.Events.Emit(lifecycle.EventActivity, lifecycle.ActivityData{
			RunID:  s.deps.RunID,
			Kind:   TimerHuman,
			Detail: detail,
			At:     s.deps.Clock.Now(),
		})
		return nil
	})
}

func (s *Scheduler) healthPoll(ctx context.Context) error {
	sig, err := s.deps.Detector.Detect(ctx, s.deps.Browser)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("health poll failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDegraded, err)
	}
	s.log.Debug("health poll", zap.Stringer("signal", sig))
	if sig == detect.SignalDisconnected {
		return ErrDegraded
	}
	return nil
}

func (s *Scheduler) snapshot(ctx context.Context) {
	if s.deps.Snapshots == nil {
		return
	}
	s.bestEffort(ctx, TimerSnapshot, func(ctx context.Context) error {
		png, err := s.deps.Browser.Snapshot(ctx)
		if err != nil {
			return err
		}
		path, err := s.deps.Snapshots.Save(ctx, diagnostics.NamePeriodic, png)
		if err != nil {
			return err
		}
		s.log.Info("snapshot saved", zap.String("path", path))
		s.deps.Events.Emit(lifecycle.EventSnapshot, lifecycle.ActivityData{
			RunID:  s.deps.RunID,
			Kind:   diagnostics.NamePeriodic,
			Detail: path,
			At:     s.deps.Clock.Now(),
		})
		return nil
	})
}

func (s *Scheduler) refresh(ctx context.Context) error {
	s.log.Info("forced refresh")
	if err := s.deps.Browser.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if err := s.deps.Clock.Sleep(ctx, s.cfg.RefreshSettle); err != nil {
		return err
	}
	if s.deps.Rehandshake != nil {
		if err := s.deps.Rehandshake(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
	}
	s.deps.Events.Emit(lifecycle.EventActivity, lifecycle.ActivityData{
		RunID: s.deps.RunID,
		Kind:  TimerRefresh,
		At:    s.deps.Clock.Now(),
	})
	return nil
}
