package model

import (
	"fmt"
	"strconv"
	"strings"
)

// VocabularyLevel is the approximate vocabulary size of the reader.
// It is embedded in prompts as a hint and never enforced mechanically.
type VocabularyLevel string

const (
	Level500  VocabularyLevel = "LEVEL_500"
	Level1000 VocabularyLevel = "LEVEL_1000"
	Level2000 VocabularyLevel = "LEVEL_2000"
	Level3000 VocabularyLevel = "LEVEL_3000"
	Level5000 VocabularyLevel = "LEVEL_5000"
	Level8000 VocabularyLevel = "LEVEL_8000"

	// DefaultLevel is used when nothing has been persisted yet.
	DefaultLevel = Level2000
)

var levelInfo = map[VocabularyLevel]struct {
	label string
	cefr  string
}{
	Level500:  {"500 words", "A1"},
	Level1000: {"1000 words", "A2"},
	Level2000: {"2000 words", "B1"},
	Level3000: {"3000 words", "B2"},
	Level5000: {"5000 words", "C1"},
	Level8000: {"8000+ words", "C2"},
}

// Levels returns all levels from smallest to largest.
func Levels() []VocabularyLevel {
	return []VocabularyLevel{Level500, Level1000, Level2000, Level3000, Level5000, Level8000}
}

// Valid reports whether l is one of the known levels.
func (l VocabularyLevel) Valid() bool {
	_, ok := levelInfo[l]
	return ok
}

// WordCount returns the numeric band of the level, e.g. 2000 for LEVEL_2000.
func (l VocabularyLevel) WordCount() int {
	n, err := strconv.Atoi(strings.TrimPrefix(string(l), "LEVEL_"))
	if err != nil {
		return 0
	}
	return n
}

// Label returns a human readable label.
func (l VocabularyLevel) Label() string {
	return levelInfo[l].label
}

// CEFR returns the matching CEFR band (A1..C2).
func (l VocabularyLevel) CEFR() string {
	return levelInfo[l].cefr
}

// ParseVocabularyLevel accepts "LEVEL_2000", "level_2000" or "2000".
func ParseVocabularyLevel(s string) (VocabularyLevel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "LEVEL_") {
		s = "LEVEL_" + s
	}
	level := VocabularyLevel(s)
	if !level.Valid() {
		return "", fmt.Errorf("unknown vocabulary level: %q", s)
	}
	return level, nil
}

// WordMasteryStatus classifies a word for one reader.
type WordMasteryStatus string

const (
	StatusKnown   WordMasteryStatus = "KNOWN"
	StatusUnknown WordMasteryStatus = "UNKNOWN"
	StatusIgnored WordMasteryStatus = "IGNORED"
)

// Valid reports whether s is one of the three statuses.
func (s WordMasteryStatus) Valid() bool {
	switch s {
	case StatusKnown, StatusUnknown, StatusIgnored:
		return true
	}
	return false
}

// ParseWordMasteryStatus parses a status case-insensitively.
func ParseWordMasteryStatus(s string) (WordMasteryStatus, error) {
	status := WordMasteryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown word status: %q", s)
	}
	return status, nil
}

// UserVocabularyConfig is the persisted vocabulary aggregate.
// A normalized word appears in at most one of the three lists.
type UserVocabularyConfig struct {
	Level        VocabularyLevel `json:"level" yaml:"level"`
	KnownWords   []string        `json:"knownWords" yaml:"known_words"`
	UnknownWords []string        `json:"unknownWords" yaml:"unknown_words"`
	IgnoredWords []string        `json:"ignoredWords" yaml:"ignored_words"`
	LastUpdated  int64           `json:"lastUpdated" yaml:"last_updated"`
}

// DefaultVocabularyConfig returns the configuration used before anything is saved.
func DefaultVocabularyConfig() UserVocabularyConfig {
	return UserVocabularyConfig{
		Level:        DefaultLevel,
		KnownWords:   []string{},
		UnknownWords: []string{},
		IgnoredWords: []string{},
	}
}

// VocabularyStats summarizes a vocabulary configuration.
type VocabularyStats struct {
	Level        VocabularyLevel `json:"level"`
	KnownCount   int             `json:"knownCount"`
	UnknownCount int             `json:"unknownCount"`
	IgnoredCount int             `json:"ignoredCount"`
	LastUpdated  int64           `json:"lastUpdated"`
}

// NormalizeWord lowercases and trims a word for lookup.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
