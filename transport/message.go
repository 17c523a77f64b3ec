// Package transport carries typed messages between the reading session and
// the background worker that talks to LLM providers.
//
// Information Hiding:
// - Wire envelope layout ({"type", "payload"})
// - Validation of inbound payloads at the boundary
// - Whether the other side is a goroutine or a remote process

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/fluentlens/llm"
	"github.com/richinex/fluentlens/model"
)

// Type names a message on the wire.
type Type string

const (
	TypeLLMRequest              Type = "LLM_REQUEST"
	TypeLLMResponse             Type = "LLM_RESPONSE"
	TypeStreamChunk             Type = "LLM_STREAM_CHUNK"
	TypeGrammarAnalysisRequest  Type = "GRAMMAR_ANALYSIS_REQUEST"
	TypeGrammarAnalysisResponse Type = "GRAMMAR_ANALYSIS_RESPONSE"
	TypeCancelRequest           Type = "CANCEL_LLM_REQUEST"
)

var (
	// ErrUnknownMessageType is returned when decoding an unrecognized type.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrInvalidMessage is returned when a payload fails validation.
	ErrInvalidMessage = errors.New("invalid message")
)

// Message is one of the concrete message structs in this package.
type Message interface {
	Type() Type
	validate() error
}

// LLMRequest asks the background to run a text completion.
type LLMRequest struct {
	RequestID   string            `json:"requestId"`
	Stream      bool              `json:"stream"`
	Messages    []llm.ChatMessage `json:"messages"`
	Temperature *float32          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"maxTokens,omitempty"`
}

// LLMResponse answers an LLMRequest. For streaming requests it is only an
// acknowledgement with Streaming set; the text arrives as StreamChunks.
type LLMResponse struct {
	RequestID string          `json:"requestId,omitempty"`
	Response  string          `json:"response"`
	Streaming bool            `json:"streaming,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind model.ErrorKind `json:"errorKind,omitempty"`
}

// StreamChunk is one fragment of a streaming response. Exactly one chunk
// per request has Done set.
type StreamChunk struct {
	RequestID string          `json:"requestId"`
	Chunk     string          `json:"chunk"`
	Done      bool            `json:"done"`
	Error     string          `json:"error,omitempty"`
	ErrorKind model.ErrorKind `json:"errorKind,omitempty"`
}

// GrammarAnalysisRequest asks for a structured grammar analysis.
type GrammarAnalysisRequest struct {
	RequestID string            `json:"requestId"`
	Messages  []llm.ChatMessage `json:"messages"`
}

// GrammarAnalysisResponse answers a GrammarAnalysisRequest. Analysis is
// nil when Error is set.
type GrammarAnalysisResponse struct {
	RequestID string                 `json:"requestId,omitempty"`
	Analysis  *model.GrammarAnalysis `json:"analysis"`
	Error     string                 `json:"error,omitempty"`
	ErrorKind model.ErrorKind        `json:"errorKind,omitempty"`
}

// CancelRequest aborts an in-flight request. It never gets a reply.
type CancelRequest struct {
	RequestID string `json:"requestId"`
}

func (LLMRequest) Type() Type              { return TypeLLMRequest }
func (LLMResponse) Type() Type             { return TypeLLMResponse }
func (StreamChunk) Type() Type             { return TypeStreamChunk }
func (GrammarAnalysisRequest) Type() Type  { return TypeGrammarAnalysisRequest }
func (GrammarAnalysisResponse) Type() Type { return TypeGrammarAnalysisResponse }
func (CancelRequest) Type() Type           { return TypeCancelRequest }

func (m LLMRequest) validate() error {
	if err := requireID(m.RequestID); err != nil {
		return err
	}
	return validateMessages(m.Messages)
}

func (LLMResponse) validate() error { return nil }

func (m StreamChunk) validate() error { return requireID(m.RequestID) }

func (m GrammarAnalysisRequest) validate() error {
	if err := requireID(m.RequestID); err != nil {
		return err
	}
	return validateMessages(m.Messages)
}

func (GrammarAnalysisResponse) validate() error { return nil }

func (m CancelRequest) validate() error { return requireID(m.RequestID) }

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: requestId is required", ErrInvalidMessage)
	}
	return nil
}

func validateMessages(messages []llm.ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages are required", ErrInvalidMessage)
	}
	for i, m := range messages {
		if !m.Valid() {
			return fmt.Errorf("%w: messages[%d] has role %q", ErrInvalidMessage, i, m.Role)
		}
	}
	return nil
}

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode validates msg and wraps it in an envelope.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(envelope{Type: msg.Type(), Payload: payload})
}

// Decode parses and validates an envelope.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var (
		msg Message
		err error
	)
	switch env.Type {
	case TypeLLMRequest:
		msg, err = decodePayload[LLMRequest](env.Payload)
	case TypeLLMResponse:
		msg, err = decodePayload[LLMResponse](env.Payload)
	case TypeStreamChunk:
		msg, err = decodePayload[StreamChunk](env.Payload)
	case TypeGrammarAnalysisRequest:
		msg, err = decodePayload[GrammarAnalysisRequest](env.Payload)
	case TypeGrammarAnalysisResponse:
		msg, err = decodePayload[GrammarAnalysisResponse](env.Payload)
	case TypeCancelRequest:
		msg, err = decodePayload[CancelRequest](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %v", ErrInvalidMessage, env.Type, err)
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodePayload[T Message](payload json.RawMessage) (Message, error) {
	var m T
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoteError rebuilds an error reported across the boundary. It returns
// nil when text is empty.
func RemoteError(text string, kind model.ErrorKind) error {
	if text == "" {
		return nil
	}
	cause := errors.New(text)
	if kind == "" {
		kind = model.Classify(cause)
	}
	return &model.Error{Kind: model.ParseErrorKind(string(kind)), Cause: cause}
}

// StreamCutText is the error carried by a terminal chunk the port made up
// because the stream ended before the background sent one.
const StreamCutText = "stream ended before completion"

// streamCut is the terminal for a stream that ended without one.
func streamCut(id string) StreamChunk {
	return StreamChunk{RequestID: id, Done: true, Error: StreamCutText, ErrorKind: model.KindNetwork}
}

// streamID returns the request id of msg when it asks for a stream.
func streamID(msg Message) string {
	if req, ok := msg.(LLMRequest); ok && req.Stream {
		return req.RequestID
	}
	return ""
}

// ErrorFields flattens err for a reply payload.
func ErrorFields(err error) (string, model.ErrorKind) {
	if err == nil {
		return "", ""
	}
	return err.Error(), model.Classify(err)
}
