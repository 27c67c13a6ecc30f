package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "keeper.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)
	l.Info("transition", zap.String("from", "opening"), zap.String("to", "connecting"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "transition", entry["msg"])
	assert.Equal(t, "connecting", entry["to"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestPackageHelpersUseInitLogger(t *testing.T) {
	prev := global.Load()
	t.Cleanup(func() { Init(prev) })

	core, logs := observer.New(zap.DebugLevel)
	Init(zap.New(core))

	Infof("opened %s", "notebook")
	Warnf("retry %d", 2)

	Disable()
	Errorf("hidden")
	Enable()

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "opened notebook", entries[0].Message)
	assert.Equal(t, "retry 2", entries[1].Message)
}
