package transport

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNoReply is returned by Send when the other side handled the
	// message without answering.
	ErrNoReply = errors.New("no reply")
	// ErrClosed is returned after a port has been closed.
	ErrClosed = errors.New("port closed")
)

// Port is the session side of the boundary.
type Port interface {
	// Send delivers msg and waits for the reply. A non-nil error is a
	// transport failure; application failures travel in the reply.
	Send(ctx context.Context, msg Message) (Message, error)
	// Post delivers msg without waiting.
	Post(msg Message) error
	// Subscribe registers fn for pushed messages. The returned function
	// unsubscribes and is safe to call more than once.
	Subscribe(fn func(Message)) func()
}

// Sink receives messages the background pushes outside a reply.
type Sink interface {
	Push(msg Message)
	// Close marks the end of pushes for one request.
	Close()
}

// Handler is the background side of the boundary. A nil reply means the
// message is answered later through the sink, or not at all.
type Handler interface {
	Handle(ctx context.Context, msg Message, sink Sink) (Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message, sink Sink) (Message, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message, sink Sink) (Message, error) {
	return f(ctx, msg, sink)
}

// Option configures a port.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	queueSize int
}

func defaultOptions() options {
	return options{logger: zap.NewNop(), queueSize: 256}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueueSize bounds the loopback delivery queue.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// subscribers is a registry of push callbacks shared by port
// implementations. Callbacks run in registration order.
type subscribers struct {
	mu   sync.RWMutex
	next uint64
	fns  map[uint64]func(Message)
}

func (s *subscribers) add(fn func(Message)) func() {
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(Message))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) dispatch(msg Message) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Message), len(ids))
	for i, id := range ids {
		fns[i] = s.fns[id]
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// roundTrip encodes and decodes msg so in-process delivery sees exactly
// what a remote peer would.
func roundTrip(msg Message) (Message, error) {
	data, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
