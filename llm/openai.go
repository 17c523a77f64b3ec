// OpenAI-compatible Provider implementation using go-openai library.
//
// Information Hiding:
// - Base URL per vendor (OpenAI, DeepSeek, Zhipu, Doubao, Qianwen, Moonshot, Groq, custom)
// - Request/response format for the Chat Completions API
// - Streaming via go-openai library, reasoning deltas dropped

package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider serves every vendor that speaks the OpenAI chat
// completions protocol.
type OpenAIProvider struct {
	client *openai.Client
	cfg    ClientConfig
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg ClientConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Name == "" {
		cfg.Name = ProviderOpenAI.String()
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), cfg: cfg}
}

// Name returns the vendor name, e.g. "deepseek".
func (p *OpenAIProvider) Name() string {
	return p.cfg.Name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.cfg.Model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends one completion request. A JSON format maps to the
// response_format switch, which every compatible vendor here accepts.
func (p *OpenAIProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	req := p.completionRequest(messages)
	if format != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(format.Type),
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, wrapError(p.cfg.Name, "chat", err)
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return LLMResponse{Content: content, Usage: openAIUsage(&resp.Usage)}, nil
}

// StreamChat forwards answer deltas to chunks. Reasoning deltas
// (DeepSeek reasoner, Qwen thinking modes) are never forwarded.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	req := p.completionRequest(messages)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapError(p.cfg.Name, "stream", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, wrapError(p.cfg.Name, "stream", err)
		}

		// Usage arrives on a final chunk with no choices.
		if u := openAIUsage(response.Usage); u != nil {
			usage = u
		}
		if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case chunks <- response.Choices[0].Delta.Content:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
}

func (p *OpenAIProvider) completionRequest(messages []ChatMessage) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    converted,
		MaxTokens:   int(p.cfg.MaxTokens),
		Temperature: p.cfg.Temperature,
	}
}

func openAIUsage(u *openai.Usage) *TokenUsage {
	if u == nil {
		return nil
	}
	return newUsage(int64(u.PromptTokens), int64(u.CompletionTokens))
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
