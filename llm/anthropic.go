// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - System prompt carried outside the message list
// - JSON output requested through the system prompt

package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// jsonInstruction is appended to the system prompt when JSON output is
// requested; the Messages API has no response_format switch.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// defaultAnthropicMaxTokens fills the max_tokens field the Messages API
// requires.
const defaultAnthropicMaxTokens = 4096

// AnthropicProvider talks to the Claude Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    ClientConfig
}

// NewAnthropicProvider creates a provider for the Messages API.
func NewAnthropicProvider(cfg ClientConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Name == "" {
		cfg.Name = ProviderAnthropic.String()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), cfg: cfg}
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string {
	return p.cfg.Name
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.cfg.Model
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends one Messages request and concatenates its text
// blocks. Thinking blocks are dropped.
func (p *AnthropicProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(messages, wantsJSON(format)))
	if err != nil {
		return LLMResponse{}, wrapError(p.cfg.Name, "chat", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return LLMResponse{
		Content: text.String(),
		Usage:   newUsage(message.Usage.InputTokens, message.Usage.OutputTokens),
	}, nil
}

// StreamChat forwards text deltas to chunks.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages, false))
	defer stream.Close()

	// Input tokens come with message_start, output tokens with message_delta.
	var input, output int64
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			input = ev.Message.Usage.InputTokens
		case anthropic.MessageDeltaEvent:
			output = ev.Usage.OutputTokens
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			select {
			case chunks <- delta.Text:
			case <-ctx.Done():
				return newUsage(input, output), ctx.Err()
			}
		}
	}

	usage := newUsage(input, output)
	if err := stream.Err(); err != nil {
		return usage, wrapError(p.cfg.Name, "stream", err)
	}
	return usage, nil
}

func (p *AnthropicProvider) params(messages []ChatMessage, jsonOut bool) anthropic.MessageNewParams {
	system, rest := splitSystem(messages)
	if jsonOut {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	converted := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			converted = append(converted, anthropic.NewAssistantMessage(block))
		} else {
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.cfg.Model),
		MaxTokens:   int64(p.cfg.MaxTokens),
		Messages:    converted,
		Temperature: anthropic.Float(float64(p.cfg.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
