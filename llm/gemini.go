// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - Client creation, deferred errors reported on first call
// - System instruction handling via config
// - JSON output via response MIME type

package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

var errGeminiNotReady = errors.New("gemini client not initialized")

// GeminiProvider talks to the Gemini generateContent API.
type GeminiProvider struct {
	client  *genai.Client
	cfg     ClientConfig
	initErr error
}

// NewGeminiProvider creates a provider for the Gemini API. A client
// initialization failure is returned by the first call.
func NewGeminiProvider(cfg ClientConfig) *GeminiProvider {
	if cfg.Name == "" {
		cfg.Name = ProviderGemini.String()
	}
	p := &GeminiProvider{cfg: cfg}

	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string {
	return p.cfg.Name
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.cfg.Model
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends one generateContent request.
func (p *GeminiProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, config := p.request(messages, wantsJSON(format))

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return LLMResponse{}, wrapError(p.cfg.Name, "chat", err)
	}
	return LLMResponse{Content: resp.Text(), Usage: geminiUsage(resp.UsageMetadata)}, nil
}

// StreamChat forwards text parts to chunks. Thought parts are skipped
// by the SDK's Text helper.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	contents, config := p.request(messages, false)

	var usage *TokenUsage
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.cfg.Model, contents, config) {
		if err != nil {
			return usage, wrapError(p.cfg.Name, "stream", err)
		}
		if u := geminiUsage(resp.UsageMetadata); u != nil {
			usage = u
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		select {
		case chunks <- text:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
	return usage, nil
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return errGeminiNotReady
	}
	return nil
}

func (p *GeminiProvider) request(messages []ChatMessage, jsonOut bool) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.cfg.Temperature),
		MaxOutputTokens: int32(p.cfg.MaxTokens),
	}
	if jsonOut {
		config.ResponseMIMEType = "application/json"
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config
}

func geminiUsage(m *genai.GenerateContentResponseUsageMetadata) *TokenUsage {
	if m == nil {
		return nil
	}
	return newUsage(int64(m.PromptTokenCount), int64(m.CandidatesTokenCount))
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
