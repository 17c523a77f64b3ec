// Streaming helpers - callback-style wrappers around Provider.StreamChat.

package llm

import (
	"context"
	"strings"
)

// StreamText runs a streaming completion and invokes onChunk for every
// content fragment in arrival order. It returns the concatenated text.
// onChunk runs on the caller's goroutine and may be nil.
func StreamText(ctx context.Context, provider Provider, messages []ChatMessage, onChunk func(string)) (string, *TokenUsage, error) {
	chunks := make(chan string)

	type result struct {
		usage *TokenUsage
		err   error
	}
	done := make(chan result, 1)

	go func() {
		usage, err := provider.StreamChat(ctx, messages, chunks)
		close(chunks)
		done <- result{usage: usage, err: err}
	}()

	var full strings.Builder
	for chunk := range chunks {
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	res := <-done
	return full.String(), res.usage, res.err
}
