package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/lifecycle"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "keeper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(ctx, Entry{At: base, RunID: "r1", Kind: KindTransition, From: "opening", To: "connecting"}))
	require.NoError(t, j.Append(ctx, Entry{At: base.Add(time.Second), RunID: "r1", Kind: KindFault, Op: "snapshot", Message: "boom"}))

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, KindFault, got[0].Kind, "newest first")
	assert.Equal(t, "snapshot", got[0].Op)
	assert.Equal(t, "connecting", got[1].To)
	assert.True(t, got[1].At.Equal(base))

	got, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper.db")
	ctx := context.Background()

	j, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, Entry{Kind: KindRestart, Attempt: 2}))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Attempt)
}

func TestSubscribeRecordsLifecycle(t *testing.T) {
	j := openTemp(t)
	m := lifecycle.NewManager()
	j.Subscribe(m, zap.NewNop())

	now := time.Now()
	m.Emit(lifecycle.EventTransition, lifecycle.TransitionData{RunID: "r", From: "connected", To: "degraded", Reason: "health poll", At: now})
	m.Emit(lifecycle.EventFault, lifecycle.FaultData{RunID: "r", Op: "human_activity", Err: errors.New("no body"), At: now})
	m.Emit(lifecycle.EventTerminal, lifecycle.RestartData{RunID: "r", Attempt: 5, Max: 5, At: now})
	m.Emit(lifecycle.EventSnapshot, lifecycle.ActivityData{RunID: "r", Kind: "periodic_check", Detail: "/tmp/x.png", At: now})

	counts, err := j.CountByKind(context.Background(), now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{KindTransition: 1, KindFault: 1, KindTerminal: 1, KindSnapshot: 1}, counts)
}

func TestLogPanic(t *testing.T) {
	j := openTemp(t)
	require.NoError(t, j.LogPanic(context.Background(), "r", "nil map"))

	got, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, KindPanic, got[0].Kind)
	assert.Equal(t, "nil map", got[0].Message)
	assert.NotEmpty(t, got[0].Stack)
}
