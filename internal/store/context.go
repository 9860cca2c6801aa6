package store

import "strings"

// Context builds a disambiguation window of up to windowSize source lines
// around a 1-based index. Preceding lines are preferred; when fewer than
// windowSize exist, the deficit is backfilled with lines following the index.
// The target line itself is never included and lines keep their natural
// reading order, joined with newlines.
func (r *Repository) Context(index int, windowSize int) string {
	pool := r.source.Lines
	idx := index - 1

	result := make([]string, 0, windowSize)

	start := idx - windowSize
	if start < 0 {
		start = 0
	}
	for p := start; p < idx && p < len(pool); p++ {
		result = append(result, pool[p].Text)
	}

	need := windowSize - len(result)
	for j := idx + 1; j < len(pool) && need > 0; j++ {
		result = append(result, pool[j].Text)
		need--
	}

	return strings.Join(result, "\n")
}
