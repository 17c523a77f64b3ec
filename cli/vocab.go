// Vocabulary commands.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/richinex/fluentlens/model"
	"github.com/richinex/fluentlens/vocabulary"
)

// MarkWords records words under status.
func MarkWords(ctx context.Context, app *App, status string, words []string, out io.Writer) error {
	st, err := model.ParseWordMasteryStatus(status)
	if err != nil {
		return err
	}
	app.Vocabulary.Init(ctx)
	if err := app.Vocabulary.MarkWords(ctx, words, st); err != nil {
		return fmt.Errorf("failed to mark words: %w", err)
	}
	fmt.Fprintf(out, "Marked %d word(s) as %s\n", len(words), st)
	return nil
}

// WordStatus prints the status of every word, or "unmarked".
func WordStatus(ctx context.Context, app *App, words []string, out io.Writer) error {
	app.Vocabulary.Init(ctx)
	for _, w := range words {
		status, ok := app.Vocabulary.GetWordStatus(w)
		if !ok {
			fmt.Fprintf(out, "%s: unmarked\n", model.NormalizeWord(w))
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", model.NormalizeWord(w), status)
	}
	return nil
}

// SetLevel changes the reader's vocabulary level. An empty level prints
// the current one and the available choices.
func SetLevel(ctx context.Context, app *App, level string, out io.Writer) error {
	app.Vocabulary.Init(ctx)
	if level == "" {
		current := app.Vocabulary.Level()
		fmt.Fprintf(out, "Current level: %s (%s, %s)\n", current, current.Label(), current.CEFR())
		for _, l := range model.Levels() {
			fmt.Fprintf(out, "  %-14s %-22s %-6s ~%d words\n", l, l.Label(), l.CEFR(), l.WordCount())
		}
		return nil
	}

	parsed, err := model.ParseVocabularyLevel(level)
	if err != nil {
		return err
	}
	if err := app.Vocabulary.UpdateLevel(ctx, parsed); err != nil {
		return fmt.Errorf("failed to update level: %w", err)
	}
	fmt.Fprintf(out, "Level set to %s\n", parsed)
	return nil
}

// Stats prints vocabulary counts.
func Stats(ctx context.Context, app *App, out io.Writer) error {
	app.Vocabulary.Init(ctx)
	s := app.Vocabulary.Stats()
	fmt.Fprintf(out, "Level:   %s (%s)\n", s.Level, s.Level.CEFR())
	fmt.Fprintf(out, "Known:   %d\n", s.KnownCount)
	fmt.Fprintf(out, "Unknown: %d\n", s.UnknownCount)
	fmt.Fprintf(out, "Ignored: %d\n", s.IgnoredCount)
	if s.LastUpdated > 0 {
		fmt.Fprintf(out, "Updated: %s\n", time.UnixMilli(s.LastUpdated).Format(time.RFC3339))
	}
	return nil
}

// ListWords prints the words under status in the order they were marked.
func ListWords(ctx context.Context, app *App, status string, out io.Writer) error {
	st, err := model.ParseWordMasteryStatus(status)
	if err != nil {
		return err
	}
	app.Vocabulary.Init(ctx)

	var words []string
	switch st {
	case model.StatusKnown:
		words = app.Vocabulary.KnownWords()
	case model.StatusUnknown:
		words = app.Vocabulary.UnknownWords()
	case model.StatusIgnored:
		words = app.Vocabulary.IgnoredWords()
	}
	if len(words) > 0 {
		fmt.Fprintln(out, strings.Join(words, "\n"))
	}
	return nil
}

// SearchWords prints marked words starting with prefix and their status.
func SearchWords(ctx context.Context, app *App, prefix string, limit int, out io.Writer) error {
	app.Vocabulary.Init(ctx)
	entries := app.Vocabulary.Search(prefix, limit)
	if len(entries) == 0 {
		fmt.Fprintf(out, "No marked words start with %q\n", model.NormalizeWord(prefix))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%-20s %s\n", e.Word, e.Status)
	}
	return nil
}

// ClearVocabulary resets the vocabulary to defaults.
func ClearVocabulary(ctx context.Context, app *App, out io.Writer) error {
	app.Vocabulary.Init(ctx)
	if err := app.Vocabulary.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear vocabulary: %w", err)
	}
	fmt.Fprintln(out, "Vocabulary cleared")
	return nil
}

// ExportVocabulary writes the vocabulary to out in format.
func ExportVocabulary(ctx context.Context, app *App, format string, out io.Writer) error {
	f, err := vocabulary.ParseFormat(format)
	if err != nil {
		return err
	}
	app.Vocabulary.Init(ctx)
	return app.Vocabulary.Export(out, f)
}

// ImportVocabulary replaces the vocabulary with the one read from in.
func ImportVocabulary(ctx context.Context, app *App, format string, in io.Reader, out io.Writer) error {
	f, err := vocabulary.ParseFormat(format)
	if err != nil {
		return err
	}
	app.Vocabulary.Init(ctx)
	if err := app.Vocabulary.Import(ctx, in, f); err != nil {
		return fmt.Errorf("failed to import vocabulary: %w", err)
	}
	s := app.Vocabulary.Stats()
	fmt.Fprintf(out, "Imported %d known, %d unknown, %d ignored\n", s.KnownCount, s.UnknownCount, s.IgnoredCount)
	return nil
}
