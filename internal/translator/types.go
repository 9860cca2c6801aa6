package translator

import "context"

// Result is the outcome of one remote translation call.
// OK is false for any failure, retryable or not; the distinction only
// affects log severity inside the adapter. Token counts are best-effort and
// zero when the provider returned no usage metadata.
type Result struct {
	OK           bool
	Translations map[string]string
	InputTokens  int
	OutputTokens int
}

// Executor performs one translation call for a single segment.
type Executor interface {
	Execute(ctx context.Context, sourceText string, contextText string, targetLangs []string) Result
}
