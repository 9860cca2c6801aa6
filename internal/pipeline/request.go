package pipeline

import (
	"fmt"
	"strings"
)

// Request is the state-carrying value object that moves through the stage
// chain. Exactly one worker owns a Request at a time; it is never shared
// across goroutines, so no internal locking is needed.
type Request struct {
	Index       int
	SourceText  string
	Context     string
	TargetLangs []string

	// Results
	Translations map[string]string
	Success      bool
	Error        string

	// Metadata
	AttemptCount int
	InputTokens  int
	OutputTokens int
}

// NewRequest creates a request for one (segment, pass) pair.
func NewRequest(index int, sourceText string, contextText string, targetLangs []string) *Request {
	return &Request{
		Index:        index,
		SourceText:   sourceText,
		Context:      contextText,
		TargetLangs:  targetLangs,
		Translations: make(map[string]string),
	}
}

// MarkSuccess records the translation results and clears any error.
func (r *Request) MarkSuccess(translations map[string]string) {
	r.Success = true
	r.Translations = translations
	r.Error = ""
}

// MarkFailure records a failure description.
func (r *Request) MarkFailure(err string) {
	r.Success = false
	r.Error = err
}

// SetTokenUsage records the token counts of the latest attempt.
func (r *Request) SetTokenUsage(inputTokens, outputTokens int) {
	r.InputTokens = inputTokens
	r.OutputTokens = outputTokens
}

// IsValid reports whether the request carries processable data.
func (r *Request) IsValid() bool {
	return strings.TrimSpace(r.SourceText) != "" &&
		len(r.TargetLangs) > 0 &&
		r.Index > 0
}

func (r *Request) String() string {
	status := "PENDING"
	switch {
	case r.Success:
		status = "SUCCESS"
	case r.Error != "":
		status = "FAILED"
	}
	return fmt.Sprintf("Request(index=%d, status=%s, attempts=%d)", r.Index, status, r.AttemptCount)
}
