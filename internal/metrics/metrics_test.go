package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/sessionkeeper/internal/lifecycle"
)

func TestSubscribeCountsEvents(t *testing.T) {
	m := New()
	lm := lifecycle.NewManager()
	m.Subscribe(lm)

	now := time.Now()
	lm.Emit(lifecycle.EventTransition, lifecycle.TransitionData{From: "connecting", To: "connected", At: now})
	lm.Emit(lifecycle.EventTransition, lifecycle.TransitionData{From: "connected", To: "degraded", At: now})
	lm.Emit(lifecycle.EventFault, lifecycle.FaultData{Op: "snapshot", Err: errors.New("x")})
	lm.Emit(lifecycle.EventFault, lifecycle.FaultData{Op: "snapshot", Err: errors.New("y")})
	lm.Emit(lifecycle.EventRestart, lifecycle.RestartData{Attempt: 1})
	lm.Emit(lifecycle.EventTerminal, lifecycle.RestartData{Attempt: 5})
	lm.Emit(lifecycle.EventSnapshot, lifecycle.ActivityData{Kind: "periodic_check"})
	lm.Emit(lifecycle.EventActivity, lifecycle.ActivityData{Kind: "human"})
	lm.Emit(lifecycle.EventCredentialsSaved, lifecycle.ActivityData{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("degraded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Faults.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Terminal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Snapshots))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Activity.WithLabelValues("human")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Saves))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("degraded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Restarts.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "keeper_restarts_total 1")
}
