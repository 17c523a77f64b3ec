// Package background is the worker side of the transport boundary. It
// owns in-flight provider calls and answers session messages.
//
// Information Hiding:
// - requestId to cancel function bookkeeping
// - Where provider configuration is read from
// - Terminal chunk synthesis for streams

package background

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/fluentlens/gateway"
	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/providers"
	"github.com/richinex/fluentlens/transport"
)

// maxEarlyCancels bounds how many cancels for not-yet-seen ids are kept.
const maxEarlyCancels = 128

// ConfigSource yields the provider configuration for a request.
type ConfigSource interface {
	Current(ctx context.Context) (model.LLMConfig, error)
}

// LLM is the subset of the gateway the worker calls.
type LLM interface {
	StreamRequest(ctx context.Context, cfg model.LLMConfig, opts gateway.Options, onChunk func(string)) (string, error)
	GenerateRequest(ctx context.Context, cfg model.LLMConfig, opts gateway.Options) (string, error)
	AnalyzeGrammar(ctx context.Context, cfg model.LLMConfig, messages []llm.ChatMessage) (model.GrammarAnalysis, error)
}

// Service handles transport messages. It implements transport.Handler.
type Service struct {
	configs ConfigSource
	llm     LLM
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	active  map[string]*inflight
	early   map[string]struct{}
	order   []string
	streams sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Service that reads configuration from configs and calls
// providers through l.
func New(configs ConfigSource, l LLM, opts ...Option) *Service {
	s := &Service{
		configs: configs,
		llm:     l,
		logger:  zap.NewNop(),
		active:  make(map[string]*inflight),
		early:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle answers one message. Streaming requests are acknowledged at once
// and continue on a goroutine that pushes chunks to sink. An aborted
// request gets no reply and no chunks.
func (s *Service) Handle(ctx context.Context, msg transport.Message, sink transport.Sink) (transport.Message, error) {
	switch m := msg.(type) {
	case transport.LLMRequest:
		if m.Stream {
			return s.startStream(ctx, m, sink)
		}
		return s.generate(ctx, m)
	case transport.GrammarAnalysisRequest:
		return s.analyze(ctx, m)
	case transport.CancelRequest:
		s.Cancel(m.RequestID)
		return nil, nil
	default:
		return nil, transport.ErrUnknownMessageType
	}
}

// Cancel aborts the request with id. A cancel that arrives before its
// request is remembered so the request is aborted on arrival.
func (s *Service) Cancel(id string) {
	s.mu.Lock()
	entry, ok := s.active[id]
	if ok {
		delete(s.active, id)
	} else {
		s.rememberEarly(id)
	}
	s.mu.Unlock()

	if ok {
		entry.cancel()
		s.logger.Debug("request cancelled", zap.String("request_id", id))
	}
}

// Active returns the number of in-flight requests.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close aborts every in-flight request and waits for streams to finish.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	active := s.active
	s.active = make(map[string]*inflight)
	s.mu.Unlock()

	for _, entry := range active {
		entry.cancel()
	}
	s.streams.Wait()
	return nil
}

func (s *Service) generate(ctx context.Context, req transport.LLMRequest) (transport.Message, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return errorResponse(req.RequestID, err), nil
	}

	reqCtx, done, err := s.register(ctx, req.RequestID)
	if err != nil {
		return nil, nil
	}
	defer done()

	text, err := s.llm.GenerateRequest(reqCtx, cfg, options(req))
	if err != nil {
		if model.IsCancelled(err) {
			return nil, nil
		}
		s.logFailure(req.RequestID, err)
		return errorResponse(req.RequestID, err), nil
	}
	return transport.LLMResponse{RequestID: req.RequestID, Response: text}, nil
}

func (s *Service) startStream(ctx context.Context, req transport.LLMRequest, sink transport.Sink) (transport.Message, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		sink.Close()
		return errorResponse(req.RequestID, err), nil
	}

	reqCtx, done, err := s.register(ctx, req.RequestID)
	if err != nil {
		sink.Close()
		return nil, nil
	}

	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		defer sink.Close()
		defer done()
		s.stream(reqCtx, cfg, req, sink)
	}()
	return transport.LLMResponse{RequestID: req.RequestID, Streaming: true}, nil
}

func (s *Service) stream(ctx context.Context, cfg model.LLMConfig, req transport.LLMRequest, sink transport.Sink) {
	_, err := s.llm.StreamRequest(ctx, cfg, options(req), func(chunk string) {
		sink.Push(transport.StreamChunk{RequestID: req.RequestID, Chunk: chunk})
	})
	if model.IsCancelled(err) {
		return
	}

	terminal := transport.StreamChunk{RequestID: req.RequestID, Done: true}
	if err != nil {
		s.logFailure(req.RequestID, err)
		terminal.Error, terminal.ErrorKind = transport.ErrorFields(err)
	}
	sink.Push(terminal)
}

func (s *Service) analyze(ctx context.Context, req transport.GrammarAnalysisRequest) (transport.Message, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		text, kind := transport.ErrorFields(err)
		return transport.GrammarAnalysisResponse{RequestID: req.RequestID, Error: text, ErrorKind: kind}, nil
	}

	reqCtx, done, err := s.register(ctx, req.RequestID)
	if err != nil {
		return nil, nil
	}
	defer done()

	analysis, err := s.llm.AnalyzeGrammar(reqCtx, cfg, req.Messages)
	if err != nil {
		if model.IsCancelled(err) {
			return nil, nil
		}
		s.logFailure(req.RequestID, err)
		text, kind := transport.ErrorFields(err)
		return transport.GrammarAnalysisResponse{RequestID: req.RequestID, Error: text, ErrorKind: kind}, nil
	}
	return transport.GrammarAnalysisResponse{RequestID: req.RequestID, Analysis: &analysis}, nil
}

var errCancelled = errors.New("request cancelled before start")

type inflight struct {
	cancel context.CancelFunc
}

// register tracks id and returns its context plus a release func. It
// fails when the request was cancelled already or the service is closed.
func (s *Service) register(ctx context.Context, id string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.early[id]; ok {
		delete(s.early, id)
		return nil, nil, errCancelled
	}
	if s.closed {
		return nil, nil, errCancelled
	}
	if prev, ok := s.active[id]; ok {
		s.logger.Warn("duplicate request id, aborting previous request", zap.String("request_id", id))
		prev.cancel()
	}

	reqCtx, cancel := context.WithCancel(ctx)
	entry := &inflight{cancel: cancel}
	s.active[id] = entry

	release := func() {
		s.mu.Lock()
		if s.active[id] == entry {
			delete(s.active, id)
		}
		s.mu.Unlock()
		cancel()
	}
	return reqCtx, release, nil
}

func (s *Service) rememberEarly(id string) {
	if _, ok := s.early[id]; ok {
		return
	}
	s.early[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > maxEarlyCancels {
		delete(s.early, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Service) config(ctx context.Context) (model.LLMConfig, error) {
	cfg, err := s.configs.Current(ctx)
	if errors.Is(err, providers.ErrConfigNotFound) {
		return model.LLMConfig{}, &model.Error{Kind: model.KindInvalidConfig, Message: providers.ErrConfigNotFound.Error()}
	}
	if err != nil {
		return model.LLMConfig{}, err
	}
	return cfg, nil
}

func (s *Service) logFailure(id string, err error) {
	s.logger.Warn("request failed",
		zap.String("request_id", id),
		zap.String("kind", string(model.Classify(err))),
		zap.Error(err))
}

func options(req transport.LLMRequest) gateway.Options {
	opts := gateway.Options{Messages: req.Messages, Temperature: req.Temperature}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	return opts
}

func errorResponse(id string, err error) transport.LLMResponse {
	text, kind := transport.ErrorFields(err)
	return transport.LLMResponse{RequestID: id, Error: text, ErrorKind: kind}
}

// Verify Service implements transport.Handler
var _ transport.Handler = (*Service)(nil)
