// Package lens is the reading session: it turns a text selection into a
// simplification or a grammar analysis and tracks both as state machines.
//
// Information Hiding:
// - Request ids, cancellation and the stream listener slot
// - Prompt construction and the message shapes sent to the background
// - Post-parse validation of the analysis vocabulary
// - Suppression of stale results from superseded requests

package lens

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/prompt"
	"github.com/richinex/fluentlens/requests"
	"github.com/richinex/fluentlens/transport"
)

var (
	// ErrEmptyText is returned when the selection is blank.
	ErrEmptyText = &model.Error{Kind: model.KindEmptyText}
	// ErrCancelled is returned when a request was cancelled or superseded.
	ErrCancelled = &model.Error{Kind: model.KindRequestCancelled}

	errNoReply         = &model.Error{Kind: model.KindUnknown, Message: "background did not answer"}
	errInvalidResponse = &model.Error{Kind: model.KindUnknown, Message: "Invalid response format"}
)

// SimplifyOptions tune one Simplify call.
type SimplifyOptions struct {
	// NoStream asks for a single reply instead of a stream.
	NoStream bool
	// OnChunk receives every streamed fragment and the text so far.
	OnChunk func(chunk, fullText string)
	// WithGrammar starts a grammar analysis of the same text alongside.
	WithGrammar bool
	// Temperature and MaxTokens override the provider configuration.
	Temperature *float32
	MaxTokens   *int
}

// Session is one reader's view onto the background. It is safe for
// concurrent use; a new Simplify supersedes whatever is in flight.
type Session struct {
	port      transport.Port
	vocab     prompt.VocabularySource
	requests  *requests.Manager
	listeners *transport.ListenerManager
	logger    *zap.Logger

	// startMu makes cancel-then-begin of a simplify atomic, so at most one
	// simplify is ever tracked.
	startMu sync.Mutex

	mu          sync.Mutex
	state       State
	simplifyGen uint64
	grammarGen  uint64

	side sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session that talks to the background through port and
// reads word knowledge from vocab.
func New(port transport.Port, vocab prompt.VocabularySource, opts ...Option) *Session {
	s := &Session{
		port:   port,
		vocab:  vocab,
		logger: zap.NewNop(),
		state:  idleState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.requests = requests.New(port, requests.WithLogger(s.logger))
	s.listeners = transport.NewListenerManager(port, s.logger)
	return s
}

// Start loads the vocabulary. Call it once before the first request.
func (s *Session) Start(ctx context.Context) {
	s.vocab.Init(ctx)
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Analysis != nil {
		a := *st.Analysis
		a.Vocabulary = append([]model.VocabularyItem(nil), a.Vocabulary...)
		st.Analysis = &a
	}
	return st
}

// ActiveRequests returns the ids of requests still in flight.
func (s *Session) ActiveRequests() []string {
	return s.requests.ActiveRequests()
}

// Simplify rewrites text in simpler English. Any request already in
// flight is cancelled first. A blank text fails without a network call.
func (s *Session) Simplify(ctx context.Context, text string, pageCtx model.PageContext, opts SimplifyOptions) (string, error) {
	if strings.TrimSpace(text) == "" {
		s.guardFailed(func(st *State) { st.SimplifyStatus = StatusError })
		return "", ErrEmptyText
	}

	s.startMu.Lock()
	s.requests.CancelAll()

	s.mu.Lock()
	s.simplifyGen++
	gen := s.simplifyGen
	s.state.SimplifyStatus = StatusLoading
	s.state.Error, s.state.ErrorKind = "", ""
	s.state.StreamingText, s.state.SimplifiedText = "", ""
	s.mu.Unlock()

	if opts.WithGrammar {
		s.startSideAnalysis(ctx, text, pageCtx)
	}

	id, reqCtx := s.requests.Begin(ctx)
	s.startMu.Unlock()
	defer s.finish(id, reqCtx)

	req := transport.LLMRequest{
		RequestID: id,
		Stream:    !opts.NoStream,
		Messages: []llm.ChatMessage{
			llm.SystemMessage(prompt.BuildSimplifyPrompt(pageCtx)),
			llm.UserMessage(text),
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var (
		result string
		err    error
	)
	if req.Stream {
		result, err = s.streamSimplify(reqCtx, gen, req, opts.OnChunk)
	} else {
		result, err = s.generate(reqCtx, req)
	}

	switch {
	case err == nil:
		s.applySimplify(gen, func(st *State) {
			st.SimplifyStatus = StatusSuccess
			st.SimplifiedText = result
		})
		return result, nil
	case reqCtx.Err() != nil || model.IsCancelled(err):
		s.applySimplify(gen, func(st *State) { st.SimplifyStatus = StatusCancelled })
		return "", ErrCancelled
	default:
		s.logger.Warn("simplify failed",
			zap.String("request_id", id),
			zap.String("kind", string(model.Classify(err))),
			zap.Error(err))
		s.applySimplify(gen, func(st *State) {
			st.SimplifyStatus = StatusError
			setError(st, err)
		})
		return "", err
	}
}

// AnalyzeGrammar marks sentence structure in text, translates it and
// explains words the reader does not know yet.
func (s *Session) AnalyzeGrammar(ctx context.Context, text string, pageCtx model.PageContext) (*model.GrammarAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		s.guardFailed(func(st *State) { st.GrammarStatus = StatusError })
		return nil, ErrEmptyText
	}
	gen, id, reqCtx := s.beginGrammar(ctx)
	return s.analyze(reqCtx, gen, id, text, pageCtx)
}

// Reset cancels everything in flight, drops the stream listener and
// returns all state to idle.
func (s *Session) Reset() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.requests.CancelAll()
	s.listeners.Dispose()

	s.mu.Lock()
	s.simplifyGen++
	s.grammarGen++
	s.state = idleState()
	s.mu.Unlock()
}

// Wait blocks until grammar analyses started by Simplify have finished.
func (s *Session) Wait() {
	s.side.Wait()
}

// Close resets the session and waits for side analyses to exit.
func (s *Session) Close() error {
	s.Reset()
	s.side.Wait()
	return nil
}

func (s *Session) streamSimplify(ctx context.Context, gen uint64, req transport.LLMRequest, onChunk func(string, string)) (string, error) {
	terminal := make(chan error, 1)
	var text strings.Builder

	listener := s.listeners.AddListener(func(msg transport.Message) {
		chunk, ok := msg.(transport.StreamChunk)
		if !ok || chunk.RequestID != req.RequestID {
			return
		}
		if chunk.Done {
			select {
			case terminal <- transport.RemoteError(chunk.Error, chunk.ErrorKind):
			default:
			}
			return
		}
		if chunk.Chunk == "" {
			return
		}
		text.WriteString(chunk.Chunk)
		full := text.String()
		s.applySimplify(gen, func(st *State) {
			st.StreamingText = full
			st.SimplifiedText = full
		})
		if onChunk != nil {
			onChunk(chunk.Chunk, full)
		}
	})
	defer listener.Remove()

	reply, err := s.port.Send(ctx, req)
	if err != nil {
		return "", sendError(ctx, err)
	}
	if ack, ok := reply.(transport.LLMResponse); ok && ack.Error != "" {
		return "", transport.RemoteError(ack.Error, ack.ErrorKind)
	}

	select {
	case err := <-terminal:
		if err != nil {
			return "", err
		}
		return text.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) generate(ctx context.Context, req transport.LLMRequest) (string, error) {
	reply, err := s.port.Send(ctx, req)
	if err != nil {
		return "", sendError(ctx, err)
	}
	resp, ok := reply.(transport.LLMResponse)
	if !ok {
		return "", errInvalidResponse
	}
	if resp.Error != "" {
		return "", transport.RemoteError(resp.Error, resp.ErrorKind)
	}
	return resp.Response, nil
}

func (s *Session) beginGrammar(ctx context.Context) (uint64, string, context.Context) {
	s.mu.Lock()
	s.grammarGen++
	gen := s.grammarGen
	s.state.GrammarStatus = StatusLoading
	s.state.Analysis = nil
	s.state.Error, s.state.ErrorKind = "", ""
	s.mu.Unlock()

	id, reqCtx := s.requests.Begin(ctx)
	return gen, id, reqCtx
}

// startSideAnalysis tracks the analysis before returning so a later
// CancelAll always reaches it.
func (s *Session) startSideAnalysis(ctx context.Context, text string, pageCtx model.PageContext) {
	gen, id, reqCtx := s.beginGrammar(context.WithoutCancel(ctx))
	s.side.Add(1)
	go func() {
		defer s.side.Done()
		_, _ = s.analyze(reqCtx, gen, id, text, pageCtx)
	}()
}

func (s *Session) analyze(ctx context.Context, gen uint64, id, text string, pageCtx model.PageContext) (*model.GrammarAnalysis, error) {
	defer s.finish(id, ctx)

	analysis, err := s.requestAnalysis(ctx, id, text, pageCtx)
	switch {
	case err == nil:
		s.applyGrammar(gen, func(st *State) {
			st.GrammarStatus = StatusSuccess
			st.Analysis = analysis
		})
		return analysis, nil
	case ctx.Err() != nil || model.IsCancelled(err):
		s.applyGrammar(gen, func(st *State) { st.GrammarStatus = StatusCancelled })
		return nil, ErrCancelled
	default:
		s.logger.Warn("grammar analysis failed",
			zap.String("request_id", id),
			zap.String("kind", string(model.Classify(err))),
			zap.Error(err))
		s.applyGrammar(gen, func(st *State) {
			st.GrammarStatus = StatusError
			setError(st, err)
		})
		return nil, err
	}
}

func (s *Session) requestAnalysis(ctx context.Context, id, text string, pageCtx model.PageContext) (*model.GrammarAnalysis, error) {
	gp, err := prompt.BuildGrammarPrompt(ctx, text, pageCtx, s.vocab)
	if err != nil {
		return nil, err
	}

	reply, err := s.port.Send(ctx, transport.GrammarAnalysisRequest{
		RequestID: id,
		Messages:  []llm.ChatMessage{llm.UserMessage(gp.Text)},
	})
	if err != nil {
		return nil, sendError(ctx, err)
	}
	resp, ok := reply.(transport.GrammarAnalysisResponse)
	if !ok {
		return nil, errInvalidResponse
	}
	if resp.Error != "" {
		return nil, transport.RemoteError(resp.Error, resp.ErrorKind)
	}
	if resp.Analysis == nil {
		return nil, errInvalidResponse
	}

	analysis := *resp.Analysis
	analysis.Vocabulary = s.keepCandidates(id, analysis.Vocabulary, gp.Candidates)
	return &analysis, nil
}

// keepCandidates drops explained words the prompt did not offer.
func (s *Session) keepCandidates(id string, items []model.VocabularyItem, candidates []string) []model.VocabularyItem {
	allowed := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		allowed[model.NormalizeWord(c)] = struct{}{}
	}

	kept := make([]model.VocabularyItem, 0, len(items))
	for _, item := range items {
		if _, ok := allowed[model.NormalizeWord(item.Word)]; ok {
			kept = append(kept, item)
			continue
		}
		s.logger.Warn("dropping vocabulary outside candidate list",
			zap.String("request_id", id),
			zap.String("word", item.Word))
	}
	return kept
}

// finish releases id. A request whose context ended without the manager
// knowing (the caller gave up) is also cancelled at the background.
func (s *Session) finish(id string, ctx context.Context) {
	if ctx.Err() != nil && s.requests.IsRequestActive(id) {
		s.requests.CancelRequest(id)
		return
	}
	s.requests.RemoveRequest(id)
}

func (s *Session) guardFailed(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	setError(&s.state, ErrEmptyText)
}

func (s *Session) applySimplify(gen uint64, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.simplifyGen {
		fn(&s.state)
	}
}

func (s *Session) applyGrammar(gen uint64, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.grammarGen {
		fn(&s.state)
	}
}

func setError(st *State, err error) {
	st.Error = model.UserMessage(err)
	st.ErrorKind = model.Classify(err)
}

// sendError turns a transport failure into the error a caller sees.
func sendError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if errors.Is(err, transport.ErrNoReply) {
		return errNoReply
	}
	return err
}
