// Shared message, usage and format types.

package llm

import "strings"

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Valid reports whether the role is one of the chat roles.
func (m ChatMessage) Valid() bool {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

func newUsage(prompt, completion int64) *TokenUsage {
	if prompt <= 0 && completion <= 0 {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(prompt),
		CompletionTokens: uint32(completion),
		TotalTokens:      uint32(prompt + completion),
	}
}

// ClientConfig is what every provider constructor needs. Name is the
// vendor name reported by Provider.Name; MaxTokens zero means no limit
// where the vendor allows it.
type ClientConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   uint32
	Temperature float32
}

// splitSystem lifts system messages out of the conversation, joined by a
// blank line, for vendors that take the system prompt separately.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system []string
	rest := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// ResponseFormatType defines the type of response format.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
)

// ResponseFormat specifies how the LLM should format its response.
type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`
}

// NewTextFormat creates a text response format.
func NewTextFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatText}
}

// NewJSONObjectFormat creates a JSON object response format.
func NewJSONObjectFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONObject}
}

func wantsJSON(format *ResponseFormat) bool {
	return format != nil && format.Type == ResponseFormatJSONObject
}
