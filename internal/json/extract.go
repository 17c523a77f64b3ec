// Package json provides JSON extraction utilities for parsing LLM responses.
//
// Models asked for JSON still wrap it in markdown fences or surround it
// with commentary. This package digs the first complete object out of
// such replies.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON finds and returns the JSON object in a response string.
// It handles:
// 1. Pure JSON response - returns the trimmed response
// 2. JSON inside a markdown code fence anywhere in the text
// 3. JSON object embedded in text - the first balanced {...} that parses
//
// Brace matching skips braces inside JSON strings, so values such as
// "use {x}" do not end the object early.
func extractJSON(response string) (string, error) {
	candidates := []string{strings.TrimSpace(response)}
	if fenced, ok := fencedBlock(response); ok {
		candidates = append([]string{fenced}, candidates...)
	}

	for _, c := range candidates {
		if isObject(c) {
			return c, nil
		}
		if obj, ok := firstObject(c); ok {
			return obj, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// fencedBlock returns the body of the first ``` fence, dropping an
// optional language tag on the opening line.
func fencedBlock(response string) (string, bool) {
	start := strings.Index(response, "```")
	if start == -1 {
		return "", false
	}
	body := response[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	end := strings.Index(body, "```")
	if end == -1 {
		return strings.TrimSpace(body), true
	}
	return strings.TrimSpace(body[:end]), true
}

func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}

// firstObject scans for balanced objects starting at each '{' and
// returns the first one that parses.
func firstObject(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end == -1 {
			return "", false
		}
		if candidate := s[i : end+1]; isObject(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or
// -1 when the object never closes.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ExtractJSONFromResponse extracts and parses JSON from an LLM response.
// Returns the parsed value or an error if extraction fails.
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	jsonStr, err := extractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// ExtractJSON extracts the JSON portion from a response string.
// Returns the raw JSON string suitable for further processing.
func ExtractJSON(response string) (string, error) {
	return extractJSON(response)
}
