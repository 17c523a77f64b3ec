package model

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind is the user-facing classification of a failure.
type ErrorKind string

const (
	KindNoAPIKey         ErrorKind = "NO_API_KEY"
	KindInvalidConfig    ErrorKind = "INVALID_CONFIG"
	KindNetwork          ErrorKind = "NETWORK_ERROR"
	KindRateLimit        ErrorKind = "RATE_LIMIT"
	KindRequestCancelled ErrorKind = "REQUEST_CANCELLED"
	KindEmptyText        ErrorKind = "EMPTY_TEXT"
	KindUnknown          ErrorKind = "UNKNOWN_ERROR"
)

var userMessages = map[ErrorKind]string{
	KindNoAPIKey:         "API key is not configured",
	KindInvalidConfig:    "Invalid LLM configuration",
	KindNetwork:          "Network connection failed",
	KindRateLimit:        "API rate limit exceeded",
	KindRequestCancelled: "Request was cancelled",
	KindEmptyText:        "Please provide text to process",
	KindUnknown:          "An unexpected error occurred",
}

// UserMessage returns the fixed message shown to the reader for k.
func (k ErrorKind) UserMessage() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// ParseErrorKind returns the kind named by s, or KindUnknown.
func ParseErrorKind(s string) ErrorKind {
	k := ErrorKind(s)
	if _, ok := userMessages[k]; ok {
		return k
	}
	return KindUnknown
}

// Error is a classified failure. Message overrides the default user
// message for the kind; Cause keeps the original error for diagnostics.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError wraps cause with a kind.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.UserMessage()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCancelled reports whether err represents an intentional cancellation.
func IsCancelled(err error) bool {
	return err != nil && Classify(err) == KindRequestCancelled
}

// Classify maps err to an ErrorKind. Typed signals win; otherwise the
// error text is matched against well-known fragments.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindRequestCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	return classifyMessage(err.Error())
}

func classifyMessage(message string) ErrorKind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "api key") || strings.Contains(message, "401"):
		return KindNoAPIKey
	case strings.Contains(lower, "network") || strings.Contains(lower, "fetch") ||
		strings.Contains(message, "ECONNREFUSED") || strings.Contains(lower, "connection refused"):
		return KindNetwork
	case strings.Contains(lower, "rate limit") || strings.Contains(message, "429"):
		return KindRateLimit
	case strings.Contains(lower, "cancelled") || strings.Contains(lower, "canceled") ||
		strings.Contains(lower, "abort"):
		return KindRequestCancelled
	}
	return KindUnknown
}

// UserMessage returns the text to show the reader for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	return Classify(err).UserMessage()
}
