package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosub/subtrans/internal/translator"
)

// fakeExecutor scripts the per-call outcomes of the translator boundary.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	results []translator.Result
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, _ string, _ []string) translator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return translator.Result{}
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okResult(translations map[string]string) translator.Result {
	return translator.Result{OK: true, Translations: translations, InputTokens: 10, OutputTokens: 5}
}

func TestValidation_FailsEmptySource(t *testing.T) {
	req := NewRequest(1, "   ", "ctx", []string{"de"})
	Validation()(context.Background(), req)

	assert.False(t, req.Success)
	assert.Equal(t, "empty source text", req.Error)
}

func TestValidation_FailsNoTargets(t *testing.T) {
	req := NewRequest(1, "Hello", "ctx", nil)
	Validation()(context.Background(), req)

	assert.Equal(t, "no target languages", req.Error)
}

func TestValidation_FailsBadIndex(t *testing.T) {
	req := NewRequest(0, "Hello", "ctx", []string{"de"})
	Validation()(context.Background(), req)

	assert.Equal(t, "invalid index", req.Error)
}

func TestValidation_PassesValidRequest(t *testing.T) {
	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	Validation()(context.Background(), req)

	assert.Empty(t, req.Error)
	assert.False(t, req.Success)
}

func TestPipeline_ValidationShortCircuitsExecution(t *testing.T) {
	exec := &fakeExecutor{}

	var persistenceTouched bool
	spy := func(_ context.Context, req *Request) *Request {
		if req.Success {
			persistenceTouched = true
		}
		return req
	}

	pipe, err := NewBuilder().
		AddValidation().
		AddExecution(exec, 3).
		AddStage(spy).
		AddReporting().
		Build()
	require.NoError(t, err)

	req := pipe.Handle(context.Background(), NewRequest(1, "", "ctx", []string{"de"}))

	assert.False(t, req.Success)
	assert.Equal(t, "empty source text", req.Error)
	assert.Zero(t, exec.callCount(), "executor must not run for invalid requests")
	assert.False(t, persistenceTouched)
}

func TestExecution_SucceedsAfterRetries(t *testing.T) {
	exec := &fakeExecutor{results: []translator.Result{
		{},
		{},
		okResult(map[string]string{"de": "Hallo"}),
	}}

	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	Execution(exec, 3, time.Millisecond, time.Millisecond)(context.Background(), req)

	require.True(t, req.Success)
	assert.Equal(t, 3, req.AttemptCount)
	assert.Equal(t, "Hallo", req.Translations["de"])
	assert.Empty(t, req.Error)
}

func TestExecution_ExhaustsAttempts(t *testing.T) {
	exec := &fakeExecutor{}

	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	Execution(exec, 3, time.Millisecond, time.Millisecond)(context.Background(), req)

	assert.False(t, req.Success)
	assert.Equal(t, 3, req.AttemptCount)
	assert.Equal(t, 3, exec.callCount())
	assert.Equal(t, "max retry attempts exceeded (3)", req.Error)
}

func TestExecution_EmptyTranslationMapIsFailure(t *testing.T) {
	exec := &fakeExecutor{results: []translator.Result{{OK: true, Translations: map[string]string{}}}}

	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	Execution(exec, 1, time.Millisecond, time.Millisecond)(context.Background(), req)

	assert.False(t, req.Success)
	assert.NotEmpty(t, req.Error)
}

func TestExecution_RecordsTokenUsage(t *testing.T) {
	exec := &fakeExecutor{results: []translator.Result{okResult(map[string]string{"de": "Hallo"})}}

	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	Execution(exec, 3, time.Millisecond, time.Millisecond)(context.Background(), req)

	assert.Equal(t, 10, req.InputTokens)
	assert.Equal(t, 5, req.OutputTokens)
}

func TestExecution_CancelledBetweenAttempts(t *testing.T) {
	exec := &fakeExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	Execution(exec, 3, time.Hour, time.Hour)(ctx, req)

	assert.False(t, req.Success)
	assert.Contains(t, req.Error, "cancelled")
	assert.Equal(t, 1, exec.callCount())
}

func TestExecution_SkipsFailedRequest(t *testing.T) {
	exec := &fakeExecutor{}

	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	req.MarkFailure("already failed")
	Execution(exec, 3, time.Millisecond, time.Millisecond)(context.Background(), req)

	assert.Zero(t, exec.callCount())
	assert.Equal(t, "already failed", req.Error)
}

func TestReporting_NeverMutates(t *testing.T) {
	req := NewRequest(1, "Hello", "ctx", []string{"de"})
	req.MarkSuccess(map[string]string{"de": "Hallo"})

	got := Reporting()(context.Background(), req)

	assert.True(t, got.Success)
	assert.Equal(t, map[string]string{"de": "Hallo"}, got.Translations)
}

func TestBuilder_RequiresStages(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
}

func TestRequest_String(t *testing.T) {
	req := NewRequest(7, "Hello", "", []string{"de"})
	assert.Contains(t, req.String(), "PENDING")

	req.MarkFailure("boom")
	assert.Contains(t, req.String(), "FAILED")

	req.MarkSuccess(map[string]string{"de": "Hallo"})
	assert.Contains(t, req.String(), "SUCCESS")
}
