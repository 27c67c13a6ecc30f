package activity

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// Policy decides when a timer is due.
type Policy interface {
	// Due reports whether a timer that last fired at last should fire at now.
	Due(now, last time.Time) bool
	// Fired is called after every firing, successful or not.
	Fired(now time.Time)
}

// Timer pairs a policy with the time it last fired.
type Timer struct {
	Name      string
	Policy    Policy
	LastFired time.Time
	Fires     int
}

func (t *Timer) due(now time.Time) bool {
	return t.Policy.Due(now, t.LastFired)
}

func (t *Timer) fired(now time.Time) {
	t.LastFired = now
	t.Fires++
	t.Policy.Fired(now)
}

// Fixed fires every D.
type Fixed struct {
	D time.Duration
}

func (f Fixed) Due(now, last time.Time) bool { return now.Sub(last) >= f.D }
func (Fixed) Fired(time.Time)                {}
func (f Fixed) String() string               { return f.D.String() }

// ParsePolicy reads a plain duration ("5m") as Fixed and anything else as a
// cron schedule.
func ParsePolicy(spec string) (Policy, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("interval %q must be positive", spec)
		}
		return Fixed{D: d}, nil
	}
	s, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Uniform fires after an interval drawn from [Min, Max), redrawn on each firing.
type Uniform struct {
	Min, Max time.Duration
	rng      *rand.Rand
	current  time.Duration
}

func NewUniform(min, max time.Duration, rng *rand.Rand) *Uniform {
	u := &Uniform{Min: min, Max: max, rng: rng}
	u.draw()
	return u
}

// Current returns the interval in effect.
func (u *Uniform) Current() time.Duration { return u.current }

func (u *Uniform) draw() {
	span := int64(u.Max - u.Min)
	if span <= 0 {
		u.current = u.Min
		return
	}
	u.current = u.Min + time.Duration(u.rng.Int64N(span))
}

func (u *Uniform) Due(now, last time.Time) bool { return now.Sub(last) >= u.current }
func (u *Uniform) Fired(time.Time)              { u.draw() }

// Schedule fires on a cron schedule such as "@every 5m" or "*/30 * * * *".
type Schedule struct {
	spec  string
	sched cron.Schedule
}

// ParseSchedule parses a standard cron expression or descriptor.
func ParseSchedule(spec string) (*Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Schedule{spec: spec, sched: sched}, nil
}

func (s *Schedule) String() string { return s.spec }

func (s *Schedule) Due(now, last time.Time) bool { return !s.sched.Next(last).After(now) }
func (*Schedule) Fired(time.Time)                {}

// Probability fires on each check with probability P.
type Probability struct {
	P   float64
	rng *rand.Rand
}

func NewProbability(p float64, rng *rand.Rand) *Probability {
	return &Probability{P: p, rng: rng}
}

func (p *Probability) Due(time.Time, time.Time) bool {
	if p.P <= 0 {
		return false
	}
	return p.rng.Float64() < p.P
}

func (*Probability) Fired(time.Time) {}
