// Package metrics exposes keeper counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/lifecycle"
)

// Metrics holds all keeper collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Transitions *prometheus.CounterVec
	Faults      *prometheus.CounterVec
	Activity    *prometheus.CounterVec
	Snapshots   prometheus.Counter
	Saves       prometheus.Counter
	Restarts    prometheus.Counter
	Terminal    prometheus.Counter
	State       *prometheus.GaugeVec
	Connected   prometheus.Gauge

	lastState string
}

// New creates a collector set registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keeper_transitions_total",
				Help: "State transitions by destination state",
			},
			[]string{"to"},
		),
		Faults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keeper_faults_swallowed_total",
				Help: "Best-effort operations that failed and were ignored",
			},
			[]string{"op"},
		),
		Activity: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keeper_activity_total",
				Help: "Scheduled activities fired, by kind",
			},
			[]string{"kind"},
		),
		Snapshots: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_snapshots_total",
			Help: "Diagnostic snapshots written",
		}),
		Saves: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_credential_saves_total",
			Help: "Credential bundles persisted",
		}),
		Restarts: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_restarts_total",
			Help: "Process-level restarts of the orchestrator",
		}),
		Terminal: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_retry_budget_exhausted_total",
			Help: "Times the restart budget ran out",
		}),
		State: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keeper_state",
				Help: "1 for the current session state, 0 otherwise",
			},
			[]string{"state"},
		),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "keeper_connected",
			Help: "1 while the runtime is connected",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Subscribe updates collectors from lifecycle events. Events are emitted
// from a single goroutine so lastState needs no lock.
func (m *Metrics) Subscribe(lm *lifecycle.Manager) {
	lm.OnTransition(func(d lifecycle.TransitionData) {
		m.Transitions.WithLabelValues(d.To).Inc()
		if m.lastState != "" {
			m.State.WithLabelValues(m.lastState).Set(0)
		}
		m.State.WithLabelValues(d.To).Set(1)
		m.lastState = d.To
		if d.To == "connected" {
			m.Connected.Set(1)
		} else {
			m.Connected.Set(0)
		}
	})
	lm.OnFault(func(d lifecycle.FaultData) {
		m.Faults.WithLabelValues(d.Op).Inc()
	})
	lm.OnRestart(func(ev lifecycle.Event, _ lifecycle.RestartData) {
		if ev == lifecycle.EventTerminal {
			m.Terminal.Inc()
			return
		}
		m.Restarts.Inc()
	})
	lm.OnActivity(func(ev lifecycle.Event, d lifecycle.ActivityData) {
		if ev == lifecycle.EventSnapshot {
			m.Snapshots.Inc()
			return
		}
		m.Activity.WithLabelValues(d.Kind).Inc()
	})
	lm.On(lifecycle.EventCredentialsSaved, func(lifecycle.Event, any) {
		m.Saves.Inc()
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
