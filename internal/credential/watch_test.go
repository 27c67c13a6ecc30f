package credential

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchSignalsOnSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "creds", "bundle.json")
	ch, err := Watch(ctx, path)
	require.NoError(t, err)

	require.NoError(t, NewFileStore(path).Save(ctx, sampleBundle()))

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after save")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
