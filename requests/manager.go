// Package requests tracks in-flight LLM requests and owns their cancellation.
//
// Information Hiding:
// - Request id format
// - Tracking set and per-request cancel functions
// - How a cancel signal reaches the background

package requests

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/fluentlens/transport"
)

// Poster delivers fire-and-forget messages to the background.
type Poster interface {
	Post(msg transport.Message) error
}

// Manager tracks live request ids. All methods are safe for concurrent use.
type Manager struct {
	poster Poster
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	counter uint64
	active  map[string]context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used in request ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager that sends cancel signals through poster.
func New(poster Poster, opts ...Option) *Manager {
	m := &Manager{
		poster: poster,
		logger: zap.NewNop(),
		now:    time.Now,
		active: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateRequestID returns an id unique for the life of the Manager:
// req_<unix millis>_<counter>_<random>.
func (m *Manager) GenerateRequestID() string {
	m.mu.Lock()
	m.counter++
	n := m.counter
	m.mu.Unlock()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("req_%d_%d_%s", m.now().UnixMilli(), n, suffix)
}

// TrackRequest marks id as live. Tracking a live id again is a no-op.
func (m *Manager) TrackRequest(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; !ok {
		m.active[id] = nil
	}
}

// Begin generates and tracks a new id and returns a context that is
// cancelled when the request is cancelled through the Manager.
func (m *Manager) Begin(parent context.Context) (string, context.Context) {
	id := m.GenerateRequestID()
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	m.active[id] = cancel
	m.mu.Unlock()
	return id, ctx
}

// RemoveRequest untracks id without signalling the background. Removing
// an unknown id is a no-op.
func (m *Manager) RemoveRequest(id string) {
	m.mu.Lock()
	cancel, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()

	if ok && cancel != nil {
		cancel()
	}
}

// IsRequestActive reports whether id is tracked.
func (m *Manager) IsRequestActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// ActiveRequests returns the tracked ids in sorted order.
func (m *Manager) ActiveRequests() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// ActiveCount returns the number of tracked ids.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// CancelRequest untracks id, cancels its local context, then signals the
// background to abort it. The signal is not acknowledged.
func (m *Manager) CancelRequest(id string) {
	m.mu.Lock()
	cancel := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.signal(id)
}

// CancelAll cancels every tracked id and clears the tracking set.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if cancel := active[id]; cancel != nil {
			cancel()
		}
		m.signal(id)
	}
	if len(ids) > 0 {
		m.logger.Debug("cancelled active requests", zap.Int("count", len(ids)))
	}
}

// Dispose cancels everything. The Manager stays usable.
func (m *Manager) Dispose() {
	m.CancelAll()
}

func (m *Manager) signal(id string) {
	if m.poster == nil {
		return
	}
	if err := m.poster.Post(transport.CancelRequest{RequestID: id}); err != nil {
		m.logger.Warn("failed to send cancel signal", zap.String("request_id", id), zap.Error(err))
	}
}
