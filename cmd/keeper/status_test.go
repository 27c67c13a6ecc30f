package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/sessionkeeper/internal/journal"
)

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(ctx, filepath.Join(t.TempDir(), "keeper.db"))
	require.NoError(t, err)
	defer j.Close()

	now := time.Now()
	require.NoError(t, j.Append(ctx, journal.Entry{At: now.Add(-2 * time.Minute), Kind: journal.KindTransition, From: "connecting", To: "connected", Message: "runtime connected"}))
	require.NoError(t, j.Append(ctx, journal.Entry{At: now.Add(-time.Minute), Kind: journal.KindFault, Op: "human_activity", Message: "script failed"}))
	require.NoError(t, j.Append(ctx, journal.Entry{At: now.Add(-48 * time.Hour), Kind: journal.KindRestart, Attempt: 1, Message: "old"}))

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, &out, j, 10, now))

	s := out.String()
	assert.Contains(t, s, "State: connected")
	assert.Contains(t, s, "connecting -> connected: runtime connected")
	assert.Contains(t, s, "human_activity: script failed")
	assert.Contains(t, s, "attempt 1: old")
	assert.Contains(t, s, "transition")
	assert.NotContains(t, s, "restart            1")
}

func TestPrintStatusEmpty(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(ctx, filepath.Join(t.TempDir(), "keeper.db"))
	require.NoError(t, err)
	defer j.Close()

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, &out, j, 10, time.Now()))
	assert.Contains(t, out.String(), "(no events)")
	assert.NotContains(t, out.String(), "State:")
}
