package model

import "math"

// VocabularyItem is one explained word in a grammar analysis.
type VocabularyItem struct {
	Word               string `json:"word"`
	SimpleDefinition   string `json:"simpleDefinition"`
	ChineseTranslation string `json:"chineseTranslation"`
}

// ConfidenceLevel buckets a confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence is the model's self-reported accuracy of an analysis.
type Confidence struct {
	Score float64         `json:"score"`
	Level ConfidenceLevel `json:"level"`
}

// NewConfidence maps a raw score to a Confidence.
// Scores outside 0..100 (or NaN) yield nil rather than a made-up value.
func NewConfidence(score float64) *Confidence {
	if math.IsNaN(score) || score < 0 || score > 100 {
		return nil
	}
	level := ConfidenceLow
	switch {
	case score >= 80:
		level = ConfidenceHigh
	case score >= 60:
		level = ConfidenceMedium
	}
	return &Confidence{Score: score, Level: level}
}

// GrammarAnalysis is the structured result of a grammar request.
// MarkedText wraps spans in <subject>, <predicate> and <object> tags.
type GrammarAnalysis struct {
	MarkedText  string           `json:"markedText"`
	Vocabulary  []VocabularyItem `json:"vocabulary"`
	Translation string           `json:"translation"`
	Confidence  *Confidence      `json:"confidence,omitempty"`
}
