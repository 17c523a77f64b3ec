package transport

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Loopback connects a session to an in-process Handler. Each message is
// handled on its own goroutine; pushed messages go through one queue and
// one delivery goroutine, so subscribers see them in push order.
//
// Every acknowledged stream ends with exactly one terminal chunk. When the
// handler closes its sink without pushing one, or the port is closed first,
// a terminal carrying a network error is made up.
type Loopback struct {
	handler Handler
	logger  *zap.Logger
	subs    subscribers

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan Message
	done   chan struct{}

	mu       sync.RWMutex
	closed   bool
	handlers sync.WaitGroup

	// open holds streaming request ids whose terminal was not delivered.
	openMu sync.Mutex
	open   map[string]struct{}
}

// NewLoopback starts a loopback port in front of h. Close releases it.
func NewLoopback(h Handler, opts ...Option) *Loopback {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loopback{
		handler: h,
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan Message, o.queueSize),
		done:    make(chan struct{}),
		open:    make(map[string]struct{}),
	}
	go l.deliver()
	return l
}

// Send hands msg to the handler and waits for its reply. Cancelling ctx
// stops the wait but not the handler; use a CancelRequest for that.
func (l *Loopback) Send(ctx context.Context, msg Message) (Message, error) {
	in, err := roundTrip(msg)
	if err != nil {
		return nil, err
	}
	if !l.begin() {
		return nil, ErrClosed
	}

	type result struct {
		reply Message
		err   error
	}
	sink := l.newSink(streamID(in))
	out := make(chan result, 1)
	go func() {
		defer l.handlers.Done()
		reply, err := l.handler.Handle(l.ctx, in, sink)
		if err == nil && reply != nil {
			reply, err = roundTrip(reply)
		}
		sink.acknowledge(reply, err)
		out <- result{reply, err}
	}()

	select {
	case r := <-out:
		if r.err != nil {
			return nil, r.err
		}
		if r.reply == nil {
			return nil, ErrNoReply
		}
		return r.reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Post hands msg to the handler without waiting.
func (l *Loopback) Post(msg Message) error {
	in, err := roundTrip(msg)
	if err != nil {
		return err
	}
	if !l.begin() {
		return ErrClosed
	}
	go func() {
		defer l.handlers.Done()
		if _, err := l.handler.Handle(l.ctx, in, l.newSink("")); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("posted message failed", zap.String("type", string(in.Type())), zap.Error(err))
		}
	}()
	return nil
}

// Subscribe registers fn for pushed messages.
func (l *Loopback) Subscribe(fn func(Message)) func() {
	return l.subs.add(fn)
}

// Close cancels in-flight handlers, waits for them, and stops delivery.
// Messages still queued are dropped; streams left open receive their
// terminal chunk directly.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.handlers.Wait()
	<-l.done

	l.openMu.Lock()
	ids := make([]string, 0, len(l.open))
	for id := range l.open {
		ids = append(ids, id)
	}
	l.open = make(map[string]struct{})
	l.openMu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		l.subs.dispatch(streamCut(id))
	}
	return nil
}

func (l *Loopback) begin() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	l.handlers.Add(1)
	return true
}

func (l *Loopback) push(msg Message) {
	m, err := roundTrip(msg)
	if err != nil {
		l.logger.Error("dropping invalid pushed message", zap.Error(err))
		return
	}
	select {
	case l.queue <- m:
	case <-l.ctx.Done():
	}
}

func (l *Loopback) deliver() {
	defer close(l.done)
	for {
		select {
		case m := <-l.queue:
			l.subs.dispatch(m)
			if chunk, ok := m.(StreamChunk); ok && chunk.Done {
				l.settle(chunk.RequestID)
			}
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *Loopback) newSink(id string) *loopbackSink {
	if id != "" {
		l.openMu.Lock()
		l.open[id] = struct{}{}
		l.openMu.Unlock()
	}
	return &loopbackSink{l: l, id: id}
}

// settle records that id needs no made-up terminal.
func (l *Loopback) settle(id string) {
	l.openMu.Lock()
	delete(l.open, id)
	l.openMu.Unlock()
}

// loopbackSink carries the pushes of one request. id is set only for
// streaming requests.
type loopbackSink struct {
	l  *Loopback
	id string

	mu     sync.Mutex
	acked  bool
	closed bool
	ended  bool
}

func (s *loopbackSink) Push(msg Message) {
	if chunk, ok := msg.(StreamChunk); ok && chunk.Done && s.id != "" && chunk.RequestID == s.id {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
	}
	s.l.push(msg)
}

func (s *loopbackSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cutIfAbandoned()
}

// acknowledge records the handler's reply. Only a streaming ack keeps the
// stream open.
func (s *loopbackSink) acknowledge(reply Message, err error) {
	if s.id == "" {
		return
	}
	if ack, ok := reply.(LLMResponse); err != nil || !ok || !ack.Streaming || ack.Error != "" {
		s.l.settle(s.id)
		return
	}
	s.mu.Lock()
	s.acked = true
	s.mu.Unlock()
	s.cutIfAbandoned()
}

// cutIfAbandoned pushes a terminal for an acknowledged stream whose sink
// was closed without one.
func (s *loopbackSink) cutIfAbandoned() {
	s.mu.Lock()
	cut := s.acked && s.closed && !s.ended
	if cut {
		s.ended = true
	}
	s.mu.Unlock()
	if cut {
		s.l.push(streamCut(s.id))
	}
}

// Verify Loopback implements Port
var _ Port = (*Loopback)(nil)
