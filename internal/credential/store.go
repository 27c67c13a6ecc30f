package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists a Bundle at a fixed location.
type Store interface {
	// Load returns ok=false with a nil error when nothing has been stored yet.
	Load(ctx context.Context) (b Bundle, ok bool, err error)
	// Save replaces the stored bundle atomically.
	Save(ctx context.Context, b Bundle) error
}

const documentVersion = 1

type document struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Tokens  Bundle    `json:"tokens"`
}

// FileStore keeps the bundle as a JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Bundle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := readFile(s.path)
	if err != nil || !ok {
		return nil, ok, err
	}
	b, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return b, true, nil
}

func (s *FileStore) Save(ctx context.Context, b Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(b, s.now())
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func encode(b Bundle, now time.Time) ([]byte, error) {
	if b == nil {
		b = Bundle{}
	}
	data, err := json.MarshalIndent(document{Version: documentVersion, SavedAt: now.UTC(), Tokens: b}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Bundle, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported bundle version %d", doc.Version)
	}
	return doc.Tokens, nil
}

func readFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return data, true, nil
}

// writeAtomic writes data to a temp file beside path and renames it into place.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
