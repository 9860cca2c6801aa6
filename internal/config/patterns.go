package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Patterns holds the data-driven response validity heuristics.
// Textual answers shorter than MinAnswerLength, or matching any of the phrase
// lists, are rejected by the translator adapter. The lists are configuration,
// not logic: they are language-specific and expected to need tuning.
type Patterns struct {
	MinAnswerLength    int      `json:"min_answer_length"`
	RepetitivePatterns []string `json:"repetitive_patterns"`
	ToolPatterns       []string `json:"tool_patterns"`
}

// DefaultPatterns returns the built-in phrase filters.
func DefaultPatterns() Patterns {
	return Patterns{
		MinAnswerLength: 5,
		RepetitivePatterns: []string{
			"a proper translation would be",
			"should be a statement matching",
			"is not appropriate",
			"let me check",
			"i need to",
			"looking at the",
		},
		ToolPatterns: []string{
			"calling tool",
			"using tool",
			"tool call",
			"invoke",
			"executing",
		},
	}
}

// LoadPatternsFile reads a full replacement pattern set from a JSON file.
func LoadPatternsFile(path string) (Patterns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Patterns{}, err
	}
	var patterns Patterns
	if err := json.Unmarshal(data, &patterns); err != nil {
		return Patterns{}, fmt.Errorf("invalid patterns file %s: %w", path, err)
	}
	if patterns.MinAnswerLength <= 0 {
		patterns.MinAnswerLength = DefaultPatterns().MinAnswerLength
	}
	return patterns, nil
}
