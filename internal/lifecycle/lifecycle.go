// Package lifecycle dispatches keeper events (state transitions, swallowed
// faults, restarts) to subscribers such as the journal and metrics.
package lifecycle

import (
	"sync"
	"time"
)

// Event types for lifecycle hooks
type Event string

const (
	EventTransition       Event = "transition"
	EventFault            Event = "fault"
	EventRestart          Event = "restart"
	EventCredentialsSaved Event = "credentials_saved"
	EventSnapshot         Event = "snapshot"
	EventActivity         Event = "activity"
	EventTerminal         Event = "terminal"
)

// Handler is a function that handles a lifecycle event
type Handler func(event Event, data any)

// Manager manages lifecycle event subscriptions and dispatching.
// The zero value is not usable; call NewManager. A nil *Manager drops events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

func NewManager() *Manager {
	return &Manager{handlers: make(map[Event][]Handler)}
}

// On registers a handler for a lifecycle event
func (m *Manager) On(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit dispatches an event to all registered handlers synchronously.
func (m *Manager) Emit(event Event, data any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	for _, h := range handlers {
		h(event, data)
	}
}

// TransitionData accompanies EventTransition.
type TransitionData struct {
	RunID  string
	From   string
	To     string
	Reason string
	At     time.Time
}

// FaultData accompanies EventFault: an operation that failed and was swallowed.
type FaultData struct {
	RunID string
	Op    string
	Err   error
	At    time.Time
}

// RestartData accompanies EventRestart and EventTerminal.
type RestartData struct {
	RunID   string
	Attempt int
	Max     int
	Wait    time.Duration
	Err     error
	At      time.Time
}

// ActivityData accompanies EventActivity and EventSnapshot.
type ActivityData struct {
	RunID  string
	Kind   string
	Detail string
	At     time.Time
}

// OnTransition registers a typed transition handler.
func (m *Manager) OnTransition(handler func(TransitionData)) {
	m.On(EventTransition, func(e Event, data any) {
		if d, ok := data.(TransitionData); ok {
			handler(d)
		}
	})
}

// OnFault registers a typed fault handler.
func (m *Manager) OnFault(handler func(FaultData)) {
	m.On(EventFault, func(e Event, data any) {
		if d, ok := data.(FaultData); ok {
			handler(d)
		}
	})
}

// OnRestart registers a typed handler for restarts and terminal failure.
func (m *Manager) OnRestart(handler func(Event, RestartData)) {
	fn := func(e Event, data any) {
		if d, ok := data.(RestartData); ok {
			handler(e, d)
		}
	}
	m.On(EventRestart, fn)
	m.On(EventTerminal, fn)
}

// OnActivity registers a typed handler for activity and snapshot events.
func (m *Manager) OnActivity(handler func(Event, ActivityData)) {
	fn := func(e Event, data any) {
		if d, ok := data.(ActivityData); ok {
			handler(e, d)
		}
	}
	m.On(EventActivity, fn)
	m.On(EventSnapshot, fn)
}
