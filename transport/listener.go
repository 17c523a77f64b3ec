package transport

import (
	"sync"

	"go.uber.org/zap"
)

// ListenerManager keeps at most one active stream listener on a port.
type ListenerManager struct {
	port   Port
	logger *zap.Logger

	mu     sync.Mutex
	active *Listener
}

// Listener is a handle to a callback registered through a ListenerManager.
type Listener struct {
	mgr         *ListenerManager
	unsubscribe func()

	mu      sync.Mutex
	removed bool
}

// NewListenerManager creates a manager for listeners on port.
func NewListenerManager(port Port, logger *zap.Logger) *ListenerManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListenerManager{port: port, logger: logger}
}

// AddListener subscribes fn, replacing any listener already active.
// No call to fn starts after the returned listener is removed or
// replaced. A call already running at that moment is not waited for, so
// fn may call Remove on its own listener.
func (m *ListenerManager) AddListener(fn func(Message)) *Listener {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.logger.Warn("listener already active, replacing it")
		m.active.detach()
		m.active = nil
	}

	l := &Listener{mgr: m}
	l.unsubscribe = m.port.Subscribe(func(msg Message) {
		l.mu.Lock()
		removed := l.removed
		l.mu.Unlock()
		if !removed {
			fn(msg)
		}
	})
	m.active = l
	return l
}

// Remove removes the active listener, if any.
func (m *ListenerManager) Remove() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.detach()
		m.active = nil
	}
}

// Dispose is Remove for teardown.
func (m *ListenerManager) Dispose() {
	m.Remove()
}

// Active reports whether a listener is registered.
func (m *ListenerManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Remove unregisters l if it is still the active listener. It is a no-op
// once l has been replaced or removed.
func (l *Listener) Remove() {
	m := l.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == l {
		l.detach()
		m.active = nil
	}
}

func (l *Listener) detach() {
	l.mu.Lock()
	l.removed = true
	l.mu.Unlock()
	l.unsubscribe()
}
