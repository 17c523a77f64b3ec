package lens

import (
	"strings"

	"github.com/richinex/fluentlens/model"
)

// Status is where one operation is in its lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// minSelectionChars is the shortest selection worth offering help for.
const minSelectionChars = 2

// State is a snapshot of a session. Error is shared by both operations
// and is never set by a cancellation.
type State struct {
	SimplifyStatus Status
	GrammarStatus  Status

	Error     string
	ErrorKind model.ErrorKind

	StreamingText  string
	SimplifiedText string
	Analysis       *model.GrammarAnalysis
}

// SimplifyLoading reports whether a simplification is in flight.
func (s State) SimplifyLoading() bool { return s.SimplifyStatus == StatusLoading }

// GrammarLoading reports whether a grammar analysis is in flight.
func (s State) GrammarLoading() bool { return s.GrammarStatus == StatusLoading }

func idleState() State {
	return State{SimplifyStatus: StatusIdle, GrammarStatus: StatusIdle}
}

// ShouldAnalyze reports whether a selection is long enough to act on.
func ShouldAnalyze(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= minSelectionChars
}
