package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubChecker struct {
	running bool
	err     error
	panics  bool
}

func (s stubChecker) Running(context.Context, string) (bool, error) {
	if s.panics {
		panic("checker exploded")
	}
	return s.running, s.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthy(t *testing.T) {
	rec := get(t, NewRouter(stubChecker{running: true}, "keeper"), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","services":{"keeper":"running","system":"operational"}}`, rec.Body.String())
}

func TestUnhealthyWhenStopped(t *testing.T) {
	rec := get(t, NewRouter(stubChecker{running: false}, "keeper"), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","services":{"keeper":"stopped","system":"operational"}}`, rec.Body.String())
}

func TestCheckerErrorIs500(t *testing.T) {
	rec := get(t, NewRouter(stubChecker{err: errors.New("pgrep: executable file not found")}, "keeper"), "/health")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"pgrep: executable file not found"}`, rec.Body.String())
}

func TestCheckerPanicIsContained(t *testing.T) {
	h := NewRouter(stubChecker{panics: true}, "keeper")
	assert.NotPanics(t, func() {
		rec := get(t, h, "/health")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestOtherPathsServeLandingPage(t *testing.T) {
	h := NewRouter(stubChecker{running: true}, "keeper")
	for _, path := range []string{"/", "/status", "/anything/else"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "<h1>Cloud Terminal Health Check</h1>")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Serve(ctx, "127.0.0.1:0", NewRouter(stubChecker{}, "keeper"), zap.NewNop())
	assert.NoError(t, err)
}
