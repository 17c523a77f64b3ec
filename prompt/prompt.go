// Package prompt renders the simplification and grammar prompts.
//
// Rendering is deterministic and has no side effects beyond the lazy
// vocabulary initialization done by the word filter.
package prompt

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/wordfilter"
)

// MaxUnknownWords caps the learning-words hint in the grammar prompt.
const MaxUnknownWords = 50

const notProvided = "Not provided"

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z]+)\}`)

// VocabularySource is the part of the vocabulary store prompts depend on.
type VocabularySource interface {
	wordfilter.KnowledgeSource
	Level() model.VocabularyLevel
	UnknownWords() []string
}

// GrammarPrompt is a rendered grammar prompt plus the candidate words it
// allows the model to explain.
type GrammarPrompt struct {
	Text       string
	Candidates []string
	// Simple is true when no candidates remained and the reduced
	// template was used.
	Simple bool
}

// BuildSimplifyPrompt renders the simplification system prompt.
func BuildSimplifyPrompt(pageCtx model.PageContext) string {
	out, err := render(simplifyTemplate, pageValues(pageCtx))
	if err != nil {
		panic(fmt.Sprintf("prompt: %v", err))
	}
	return out
}

// BuildGrammarPrompt renders the grammar prompt for text. When the word
// filter leaves no candidates the reduced template is used, which forces
// an empty vocabulary.
func BuildGrammarPrompt(ctx context.Context, text string, pageCtx model.PageContext, vocab VocabularySource) (GrammarPrompt, error) {
	candidates := wordfilter.ExtractAndFilterWords(ctx, text, vocab)

	if len(candidates) == 0 {
		out, err := render(simpleGrammarTemplate, map[string]string{"text": text})
		if err != nil {
			return GrammarPrompt{}, err
		}
		return GrammarPrompt{Text: out, Candidates: candidates, Simple: true}, nil
	}

	level := vocab.Level()
	unknown := vocab.UnknownWords()
	if len(unknown) > MaxUnknownWords {
		unknown = unknown[:MaxUnknownWords]
	}
	unknownList := "None"
	if len(unknown) > 0 {
		unknownList = strings.Join(unknown, ", ")
	}

	values := pageValues(pageCtx)
	values["vocabularyLevel"] = string(level)
	values["wordCount"] = strconv.Itoa(level.WordCount())
	values["cefr"] = level.CEFR()
	values["unknownWords"] = unknownList
	values["filteredWords"] = strings.Join(candidates, ", ")
	values["text"] = text

	out, err := render(grammarTemplate, values)
	if err != nil {
		return GrammarPrompt{}, err
	}
	return GrammarPrompt{Text: out, Candidates: candidates}, nil
}

func pageValues(pageCtx model.PageContext) map[string]string {
	orDefault := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return notProvided
		}
		return s
	}
	return map[string]string{
		"pageUrl":         orDefault(pageCtx.PageURL),
		"pageTitle":       orDefault(pageCtx.PageTitle),
		"pageDescription": orDefault(pageCtx.PageDescription),
	}
}

// render substitutes every {name} token in one pass. Substituted values
// are not rescanned, so user text containing braces is left alone. A
// token without a value is an error.
func render(template string, values map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		value, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return token
		}
		return value
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("unresolved prompt placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
