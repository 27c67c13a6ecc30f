// Package journal records keeper events in a local SQLite database so
// `keeper status` can show what happened while nobody was watching.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/neboloop/sessionkeeper/internal/lifecycle"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Entry kinds.
const (
	KindTransition = "transition"
	KindFault      = "fault"
	KindRestart    = "restart"
	KindTerminal   = "terminal"
	KindSnapshot   = "snapshot"
	KindActivity   = "activity"
	KindSaved      = "credentials_saved"
	KindPanic      = "panic"
)

// Entry is one journal row.
type Entry struct {
	ID      int64
	At      time.Time
	RunID   string
	Kind    string
	From    string
	To      string
	Op      string
	Message string
	Attempt int
	Stack   string
}

// Journal persists entries. Safe for concurrent use.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the journal at path and applies migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite doesn't handle concurrent writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Journal{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append writes e. A zero At is stamped with the current time.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var stack sql.NullString
	if e.Stack != "" {
		stack = sql.NullString{String: e.Stack, Valid: true}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (at_ms, run_id, kind, from_state, to_state, op, message, attempt, stack)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.RunID, e.Kind, e.From, e.To, e.Op, e.Message, e.Attempt, stack)
	if err != nil {
		return fmt.Errorf("append %s: %w", e.Kind, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at_ms, run_id, kind, from_state, to_state, op, message, attempt, stack
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			atMS  int64
			stack sql.NullString
		)
		if err := rows.Scan(&e.ID, &atMS, &e.RunID, &e.Kind, &e.From, &e.To, &e.Op, &e.Message, &e.Attempt, &stack); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.UnixMilli(atMS)
		e.Stack = stack.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByKind returns how many entries of each kind exist since the given time.
func (j *Journal) CountByKind(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE at_ms >= ? GROUP BY kind`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// LogPanic records a recovered panic with a stack trace.
func (j *Journal) LogPanic(ctx context.Context, runID string, r any) error {
	stack := make([]byte, 8192)
	n := runtime.Stack(stack, false)
	return j.Append(ctx, Entry{
		RunID:   runID,
		Kind:    KindPanic,
		Message: fmt.Sprintf("%v", r),
		Stack:   string(stack[:n]),
	})
}

// Subscribe records every lifecycle event. Write failures are logged and
// otherwise ignored; the journal never blocks the keeper.
func (j *Journal) Subscribe(m *lifecycle.Manager, log *zap.Logger) {
	write := func(e Entry) {
		if err := j.Append(context.Background(), e); err != nil {
			log.Warn("journal write failed", zap.Error(err))
		}
	}

	m.OnTransition(func(d lifecycle.TransitionData) {
		write(Entry{At: d.At, RunID: d.RunID, Kind: KindTransition, From: d.From, To: d.To, Message: d.Reason})
	})
	m.OnFault(func(d lifecycle.FaultData) {
		write(Entry{At: d.At, RunID: d.RunID, Kind: KindFault, Op: d.Op, Message: errString(d.Err)})
	})
	m.OnRestart(func(ev lifecycle.Event, d lifecycle.RestartData) {
		kind := KindRestart
		if ev == lifecycle.EventTerminal {
			kind = KindTerminal
		}
		write(Entry{At: d.At, RunID: d.RunID, Kind: kind, Attempt: d.Attempt, Message: errString(d.Err), Op: d.Wait.String()})
	})
	m.OnActivity(func(ev lifecycle.Event, d lifecycle.ActivityData) {
		kind := KindActivity
		if ev == lifecycle.EventSnapshot {
			kind = KindSnapshot
		}
		write(Entry{At: d.At, RunID: d.RunID, Kind: kind, Op: d.Kind, Message: d.Detail})
	})
	m.On(lifecycle.EventCredentialsSaved, func(_ lifecycle.Event, data any) {
		if d, ok := data.(lifecycle.ActivityData); ok {
			write(Entry{At: d.At, RunID: d.RunID, Kind: KindSaved, Message: d.Detail})
		}
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
