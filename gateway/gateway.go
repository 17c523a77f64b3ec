// Package gateway turns provider configuration plus chat messages into
// LLM calls: streaming text, one-shot text, and structured grammar
// analysis.
//
// Information Hiding:
// - Provider construction from a stored LLMConfig
// - Temperature and timeout defaults
// - Mapping of provider errors onto the model error taxonomy
// - Tolerant parsing of the grammar analysis reply

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	ijson "github.com/richinex/fluentlens/internal/json"
	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
)

const (
	// DefaultTemperature applies when neither the request nor the
	// provider config sets one.
	DefaultTemperature float32 = 0.7

	// GrammarTemperature keeps the structured analysis stable.
	GrammarTemperature float32 = 0.1

	// DefaultRequestTimeout bounds every provider call.
	DefaultRequestTimeout = 2 * time.Minute

	emptyAnalysis = `{"markedText":"","vocabulary":[],"translation":""}`
)

// ErrAborted is returned when the caller cancelled the request.
var ErrAborted = &model.Error{Kind: model.KindRequestCancelled, Message: "request aborted"}

// Options are the per-request parameters.
type Options struct {
	Messages    []llm.ChatMessage
	Temperature *float32
	MaxTokens   int
}

// ProviderFactory builds a provider for one request.
type ProviderFactory func(cfg model.LLMConfig, temperature float32, maxTokens int) (llm.Provider, error)

// Gateway executes LLM requests. It holds no per-request state and is
// safe for concurrent use.
type Gateway struct {
	logger      *zap.Logger
	factory     ProviderFactory
	timeout     time.Duration
	defaultTemp float32
	defaultMax  int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithProviderFactory replaces the SDK-backed provider construction.
func WithProviderFactory(f ProviderFactory) Option {
	return func(g *Gateway) {
		if f != nil {
			g.factory = f
		}
	}
}

// WithRequestTimeout sets the per-call deadline. Zero or negative
// disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithDefaultTemperature replaces DefaultTemperature as the last fallback.
func WithDefaultTemperature(t float32) Option {
	return func(g *Gateway) {
		g.defaultTemp = t
	}
}

// WithDefaultMaxTokens sets the completion limit used when neither the
// request nor the provider config sets one. Zero leaves it to the provider.
func WithDefaultMaxTokens(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.defaultMax = n
		}
	}
}

// New creates a Gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		logger:      zap.NewNop(),
		factory:     NewProvider,
		timeout:     DefaultRequestTimeout,
		defaultTemp: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewProvider is the default ProviderFactory. It resolves the endpoint
// from the provider table and builds the matching SDK client.
func NewProvider(cfg model.LLMConfig, temperature float32, maxTokens int) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, &model.Error{Kind: model.KindInvalidConfig, Cause: err}
	}
	baseURL, err := llm.ResolveBaseURL(cfg.Provider, cfg.APIURL)
	if err != nil {
		return nil, &model.Error{Kind: model.KindInvalidConfig, Cause: err}
	}

	b := llm.NewProviderBuilder(providerType).
		Model(cfg.Model).
		BaseURL(baseURL).
		Temperature(temperature)
	if maxTokens > 0 {
		b = b.MaxTokens(uint32(maxTokens))
	}
	return b.APIKey(cfg.APIKey)
}

// StreamRequest streams a completion, calling onChunk for every content
// fragment in order, and returns the full text. Cancelling ctx yields
// ErrAborted.
func (g *Gateway) StreamRequest(ctx context.Context, cfg model.LLMConfig, opts Options, onChunk func(string)) (string, error) {
	provider, err := g.provider(cfg, g.temperature(cfg, opts.Temperature), g.maxTokens(cfg, opts.MaxTokens))
	if err != nil {
		return "", err
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	start := time.Now()
	text, usage, err := llm.StreamText(callCtx, provider, opts.Messages, onChunk)
	if err != nil {
		return text, g.fail(ctx, provider, err)
	}
	g.done(provider, "stream", start, usage)
	return text, nil
}

// GenerateRequest runs a one-shot completion.
func (g *Gateway) GenerateRequest(ctx context.Context, cfg model.LLMConfig, opts Options) (string, error) {
	provider, err := g.provider(cfg, g.temperature(cfg, opts.Temperature), g.maxTokens(cfg, opts.MaxTokens))
	if err != nil {
		return "", err
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	start := time.Now()
	resp, err := provider.Chat(callCtx, opts.Messages)
	if err != nil {
		return "", g.fail(ctx, provider, err)
	}
	g.done(provider, "generate", start, resp.Usage)
	return resp.Content, nil
}

// AnalyzeGrammar requests a JSON grammar analysis at low temperature and
// parses it. An empty reply yields an empty analysis.
func (g *Gateway) AnalyzeGrammar(ctx context.Context, cfg model.LLMConfig, messages []llm.ChatMessage) (model.GrammarAnalysis, error) {
	provider, err := g.provider(cfg, GrammarTemperature, g.maxTokens(cfg, 0))
	if err != nil {
		return model.GrammarAnalysis{}, err
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	start := time.Now()
	resp, err := provider.ChatWithFormat(callCtx, messages, llm.NewJSONObjectFormat())
	if err != nil {
		return model.GrammarAnalysis{}, g.fail(ctx, provider, err)
	}
	g.done(provider, "grammar", start, resp.Usage)

	analysis, err := ParseAnalysis(resp.Content)
	if err != nil {
		g.logger.Warn("grammar analysis unparsable",
			zap.String("provider", provider.Name()),
			zap.Int("content_length", len(resp.Content)),
			zap.Error(err))
		return model.GrammarAnalysis{}, err
	}
	return analysis, nil
}

// ParseAnalysis decodes a grammar analysis reply. The JSON object may be
// wrapped in prose or a code fence. Confidence is kept only when the raw
// value is a number within 0..100.
func ParseAnalysis(content string) (model.GrammarAnalysis, error) {
	if content == "" {
		content = emptyAnalysis
	}

	raw, err := ijson.ExtractJSON(content)
	if err != nil {
		return model.GrammarAnalysis{}, &model.Error{Kind: model.KindUnknown, Message: "failed to parse grammar analysis", Cause: err}
	}

	var parsed struct {
		MarkedText  string                 `json:"markedText"`
		Vocabulary  []model.VocabularyItem `json:"vocabulary"`
		Translation string                 `json:"translation"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return model.GrammarAnalysis{}, &model.Error{Kind: model.KindUnknown, Message: "failed to parse grammar analysis", Cause: err}
	}

	analysis := model.GrammarAnalysis{
		MarkedText:  parsed.MarkedText,
		Vocabulary:  parsed.Vocabulary,
		Translation: parsed.Translation,
	}
	if analysis.Vocabulary == nil {
		analysis.Vocabulary = []model.VocabularyItem{}
	}
	if score := gjson.Get(raw, "confidence"); score.Type == gjson.Number {
		analysis.Confidence = model.NewConfidence(score.Float())
	}
	return analysis, nil
}

func (g *Gateway) provider(cfg model.LLMConfig, temperature float32, maxTokens int) (llm.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := g.factory(cfg, temperature, maxTokens)
	if err != nil {
		var classified *model.Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, &model.Error{Kind: model.KindInvalidConfig, Cause: err}
	}
	return p, nil
}

func (g *Gateway) temperature(cfg model.LLMConfig, requested *float32) float32 {
	switch {
	case requested != nil:
		return *requested
	case cfg.Temperature != nil:
		return *cfg.Temperature
	default:
		return g.defaultTemp
	}
}

func (g *Gateway) maxTokens(cfg model.LLMConfig, requested int) int {
	switch {
	case requested > 0:
		return requested
	case cfg.MaxTokens > 0:
		return cfg.MaxTokens
	default:
		return g.defaultMax
	}
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gateway) done(p llm.Provider, op string, start time.Time, usage *llm.TokenUsage) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if usage != nil {
		fields = append(fields, zap.Uint32("total_tokens", usage.TotalTokens))
	}
	g.logger.Debug("llm request completed", fields...)
}

func (g *Gateway) fail(parent context.Context, p llm.Provider, err error) error {
	mapped := classify(parent, err)
	if mapped == ErrAborted {
		g.logger.Debug("llm request aborted", zap.String("provider", p.Name()))
		return mapped
	}
	g.logger.Warn("llm request failed",
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.String("kind", string(model.Classify(mapped))),
		zap.Error(err))
	return mapped
}

// classify maps a provider error onto the taxonomy. parent is the
// caller's context: its cancellation means abort, while a deadline on
// the call context means timeout.
func classify(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return ErrAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.Error{Kind: model.KindNetwork, Message: "request timed out", Cause: err}
	}

	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return &model.Error{Kind: model.KindNoAPIKey, Cause: err}
		case status == http.StatusTooManyRequests:
			return &model.Error{Kind: model.KindRateLimit, Cause: err}
		case status >= 500:
			return &model.Error{Kind: model.KindNetwork, Cause: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.Error{Kind: model.KindNetwork, Cause: err}
	}
	return fmt.Errorf("llm request failed: %w", err)
}

func statusCode(err error) int {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
