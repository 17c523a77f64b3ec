package llm

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// APIError is a failed provider call. StatusCode is the HTTP status the
// vendor answered with, or zero when no response arrived.
type APIError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (HTTP %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// wrapError tags err with the provider and the vendor status code so
// callers never need to know which SDK produced it.
func wrapError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{Provider: provider, Op: op, StatusCode: statusOf(err), Err: err}
}

func statusOf(err error) int {
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return oaiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	// genai returns APIError by value.
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	return 0
}
