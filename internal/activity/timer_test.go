package activity

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUniformRedrawsWithinRange(t *testing.T) {
	u := NewUniform(60*time.Second, 180*time.Second, rand.New(rand.NewPCG(7, 7)))
	distinct := map[time.Duration]bool{}
	for range 100 {
		cur := u.Current()
		assert.GreaterOrEqual(t, cur, 60*time.Second)
		assert.Less(t, cur, 180*time.Second)
		distinct[cur] = true

		assert.False(t, u.Due(start.Add(cur-time.Nanosecond), start))
		assert.True(t, u.Due(start.Add(cur), start))
		u.Fired(start)
	}
	assert.Greater(t, len(distinct), 1)
}

func TestFixed(t *testing.T) {
	f := Fixed{D: time.Minute}
	assert.False(t, f.Due(start.Add(59*time.Second), start))
	assert.True(t, f.Due(start.Add(time.Minute), start))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("5m")
	require.NoError(t, err)
	assert.Equal(t, Fixed{D: 5 * time.Minute}, p)

	p, err = ParsePolicy("@every 30m")
	require.NoError(t, err)
	assert.IsType(t, &Schedule{}, p)
	assert.True(t, p.Due(start.Add(30*time.Minute), start))

	_, err = ParsePolicy("-1m")
	assert.Error(t, err)
	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 5m")
	require.NoError(t, err)
	assert.Equal(t, "@every 5m", s.String())
	assert.False(t, s.Due(start.Add(299*time.Second), start))
	assert.True(t, s.Due(start.Add(300*time.Second), start))

	_, err = ParseSchedule("not a schedule")
	assert.Error(t, err)
}

func TestProbabilityBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	never := NewProbability(0, rng)
	always := NewProbability(1, rng)
	for range 1000 {
		assert.False(t, never.Due(start, start))
		assert.True(t, always.Due(start, start))
	}

	p := NewProbability(0.001, rng)
	hits := 0
	for range 100_000 {
		if p.Due(start, start) {
			hits++
		}
	}
	assert.InDelta(t, 100, hits, 60)
}

func TestBestEffort(t *testing.T) {
	log := zap.NewNop()
	ctx := context.Background()

	assert.NoError(t, BestEffort(ctx, log, "ok", func(context.Context) error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, BestEffort(ctx, log, "fail", func(context.Context) error { return boom }), boom)

	err := BestEffort(ctx, log, "panic", func(context.Context) error { panic("nil element") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil element")
}
