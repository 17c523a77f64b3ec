// Package llm wraps the chat completion APIs the reader can be pointed at.
//
// Information Hiding:
// - SDK client setup and authentication per vendor
// - Base URLs of the OpenAI-compatible vendors
// - Wire format of messages, usage and errors

package llm

import (
	"context"
)

// Provider is one configured vendor and model. Errors returned by a
// Provider wrap an *APIError when the vendor was reached.
type Provider interface {
	// Name is the vendor name, e.g. "zhipu".
	Name() string

	Model() string

	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithFormat is Chat with a requested output format; nil means text.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error)

	// StreamChat sends answer fragments to chunks in order and returns
	// when the reply is complete. Reasoning output never reaches chunks.
	// The channel is not closed. Usage is nil when the vendor omits it.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}
