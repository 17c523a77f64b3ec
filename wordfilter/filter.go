// Package wordfilter narrows free text down to words worth explaining.
package wordfilter

import (
	"bufio"
	"context"
	_ "embed"
	"regexp"
	"strings"
)

// MaxFilteredWords bounds the candidate list embedded in a prompt.
const MaxFilteredWords = 200

// Words with an internal apostrophe ("don't") stay one token.
var wordPattern = regexp.MustCompile(`\b[a-zA-Z]+(?:'[a-zA-Z]+)?\b`)

var numberPattern = regexp.MustCompile(`^\d+$`)

//go:embed stopwords.txt
var stopwordData string

var functionWords = parseStopwords(stopwordData)

// KnowledgeSource is the view of the vocabulary store the filter needs.
type KnowledgeSource interface {
	Initialized() bool
	Init(ctx context.Context)
	IsWordKnown(word string) bool
}

// ExtractAndFilterWords returns the unique lowercase words of text that
// are neither function words nor known to the reader, in first-seen
// order and capped at MaxFilteredWords. The store is initialized on
// first use if nobody has done so yet.
func ExtractAndFilterWords(ctx context.Context, text string, store KnowledgeSource) []string {
	if store != nil && !store.Initialized() {
		store.Init(ctx)
	}

	seen := make(map[string]struct{})
	result := []string{}
	for _, token := range wordPattern.FindAllString(text, -1) {
		word := strings.ToLower(token)
		if _, dup := seen[word]; dup {
			continue
		}
		if !eligible(word, store) {
			continue
		}
		seen[word] = struct{}{}
		result = append(result, word)
		if len(result) == MaxFilteredWords {
			break
		}
	}
	return result
}

func eligible(word string, store KnowledgeSource) bool {
	switch {
	case len(word) <= 1:
		return false
	case IsFunctionWord(word):
		return false
	case store != nil && store.IsWordKnown(word):
		return false
	case numberPattern.MatchString(word):
		return false
	}
	return true
}

// IsFunctionWord reports whether word is on the stoplist.
func IsFunctionWord(word string) bool {
	_, ok := functionWords[strings.ToLower(word)]
	return ok
}

func parseStopwords(data string) map[string]struct{} {
	words := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[strings.ToLower(line)] = struct{}{}
	}
	return words
}
