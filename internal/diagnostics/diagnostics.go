// Package diagnostics persists page snapshots for later inspection.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/neboloop/sessionkeeper/internal/clock"
)

// Snapshot names.
const (
	NamePeriodic = "periodic_check"
	NameDegraded = "degraded"
)

var ErrEmptySnapshot = errors.New("snapshot is empty")

// Writer stores PNGs as <dir>/<name>_<unix>.png and keeps at most Keep of
// them. Keep <= 0 disables pruning.
type Writer struct {
	Dir   string
	Keep  int
	Clock clock.Clock
}

func NewWriter(dir string, keep int, clk clock.Clock) *Writer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Writer{Dir: dir, Keep: keep, Clock: clk}
}

// Save writes png and prunes old files. It returns the written path.
func (w *Writer) Save(ctx context.Context, name string, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", ErrEmptySnapshot
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("create diagnostics dir: %w", err)
	}

	path := filepath.Join(w.Dir, fmt.Sprintf("%s_%d.png", name, w.Clock.Now().Unix()))
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.prune(); err != nil {
		return path, fmt.Errorf("prune snapshots: %w", err)
	}
	return path, nil
}

// List returns snapshot files, oldest first.
func (w *Writer) List() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type shot struct {
		path string
		mod  int64
	}
	var shots []shot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") || !strings.Contains(e.Name(), "_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		shots = append(shots, shot{filepath.Join(w.Dir, e.Name()), info.ModTime().UnixNano()})
	}
	slices.SortStableFunc(shots, func(a, b shot) int {
		if a.mod != b.mod {
			if a.mod < b.mod {
				return -1
			}
			return 1
		}
		return strings.Compare(a.path, b.path)
	})

	out := make([]string, len(shots))
	for i, s := range shots {
		out[i] = s.path
	}
	return out, nil
}

func (w *Writer) prune() error {
	if w.Keep <= 0 {
		return nil
	}
	files, err := w.List()
	if err != nil {
		return err
	}
	var errs []error
	for len(files) > w.Keep {
		if err := os.Remove(files[0]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
		files = files[1:]
	}
	return errors.Join(errs...)
}
