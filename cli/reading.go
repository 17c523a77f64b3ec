// Reading commands: simplify and grammar.
//
// Information Hiding:
// - Session lifetime per command
// - Output formatting of streamed text and analyses

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/richinex/fluentlens/lens"
	"github.com/richinex/fluentlens/model"
)

// SimplifyOptions holds flags for the simplify command.
type SimplifyOptions struct {
	Page        model.PageContext
	NoStream    bool
	WithGrammar bool
	Temperature *float32
	MaxTokens   *int
}

// Simplify rewrites text and writes it to out, chunk by chunk when
// streaming. With WithGrammar the analysis follows the text.
func Simplify(ctx context.Context, app *App, text string, opts SimplifyOptions, out io.Writer) error {
	session := app.Session(ctx)
	defer session.Close()

	var streamed atomic.Bool
	result, err := session.Simplify(ctx, text, opts.Page, lens.SimplifyOptions{
		NoStream:    opts.NoStream,
		WithGrammar: opts.WithGrammar,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		OnChunk: func(chunk, _ string) {
			streamed.Store(true)
			fmt.Fprint(out, chunk)
		},
	})
	if err != nil {
		if streamed.Load() {
			fmt.Fprintln(out)
		}
		return commandError(err)
	}
	if !streamed.Load() {
		fmt.Fprint(out, result)
	}
	fmt.Fprintln(out)

	if !opts.WithGrammar {
		return nil
	}
	session.Wait()
	st := session.State()
	if st.GrammarStatus != lens.StatusSuccess || st.Analysis == nil {
		return fmt.Errorf("grammar analysis %s: %s", st.GrammarStatus, st.Error)
	}
	fmt.Fprintln(out)
	printAnalysis(out, st.Analysis)
	return nil
}

// Grammar analyzes text and writes the analysis to out.
func Grammar(ctx context.Context, app *App, text string, page model.PageContext, out io.Writer) error {
	session := app.Session(ctx)
	defer session.Close()

	analysis, err := session.AnalyzeGrammar(ctx, text, page)
	if err != nil {
		return commandError(err)
	}
	printAnalysis(out, analysis)
	return nil
}

func printAnalysis(out io.Writer, a *model.GrammarAnalysis) {
	fmt.Fprintf(out, "Structure:   %s\n", a.MarkedText)
	fmt.Fprintf(out, "Translation: %s\n", a.Translation)
	if a.Confidence != nil {
		fmt.Fprintf(out, "Confidence:  %.0f (%s)\n", a.Confidence.Score, a.Confidence.Level)
	}
	if len(a.Vocabulary) == 0 {
		return
	}
	fmt.Fprintln(out, "Vocabulary:")
	for _, item := range a.Vocabulary {
		line := fmt.Sprintf("  %s: %s", item.Word, item.SimpleDefinition)
		if item.ChineseTranslation != "" {
			line += " (" + item.ChineseTranslation + ")"
		}
		fmt.Fprintln(out, line)
	}
}

// commandError prefixes session failures with the user-facing message
// for their kind.
func commandError(err error) error {
	kind := model.Classify(err)
	msg := model.UserMessage(err)
	if msg == "" || strings.Contains(err.Error(), msg) {
		return err
	}
	return fmt.Errorf("%s (%s): %w", msg, kind, err)
}
