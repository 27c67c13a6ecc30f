// Package health serves a liveness endpoint that reports whether the keeper
// process is running on this host.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/httputil"
)

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Health Check</title></head>
<body>
<h1>Cloud Terminal Health Check</h1>
<p>Service is running. See <a href="/health">/health</a> for status.</p>
</body>
</html>
`

// LockFileName is the file `keeper run` holds locked for its lifetime.
const LockFileName = "keeper.lock"

// ProcessChecker reports whether the monitored process is running. name is
// the label the checker was configured with.
type ProcessChecker interface {
	Running(ctx context.Context, name string) (bool, error)
}

// RunLock reports the keeper as running while another process holds the
// lock file at Path.
type RunLock struct {
	Path string
}

func (l RunLock) Running(ctx context.Context, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open lock: %w", err)
	}
	defer f.Close()
	return lockHeld(f)
}

// Pgrep checks with `pgrep -x`, ignoring the calling process.
type Pgrep struct{}

func (Pgrep) Running(ctx context.Context, name string) (bool, error) {
	out, err := exec.CommandContext(ctx, "pgrep", "-x", name).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			// pgrep exits 1 when nothing matched.
			return false, nil
		}
		return false, fmt.Errorf("pgrep: %w", err)
	}
	self := os.Getpid()
	for _, field := range strings.Fields(string(out)) {
		if pid, err := strconv.Atoi(field); err == nil && pid != self {
			return true, nil
		}
	}
	return false, nil
}

// Status is the /health body.
type Status struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// NewRouter serves /health for process and a static page everywhere else.
func NewRouter(checker ProcessChecker, process string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		running, err := checker.Running(ctx, process)
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		if !running {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, Status{
				Status:   "unhealthy",
				Services: map[string]string{process: "stopped", "system": "operational"},
			})
			return
		}
		httputil.OkJSON(w, Status{
			Status:   "healthy",
			Services: map[string]string{process: "running", "system": "operational"},
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteHTML(w, http.StatusOK, landingPage)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteHTML(w, http.StatusOK, landingPage)
	})
	return r
}

// Serve runs the health server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("health server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
