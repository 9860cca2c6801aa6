package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kosub/subtrans/internal/store"
	"github.com/kosub/subtrans/internal/translator"
	"github.com/kosub/subtrans/pkg/log"
)

// Stage is one step of the processing chain. Stages check the request's
// status at entry by convention: a request that already failed passes
// through untouched (except reporting, which always records the outcome).
type Stage func(ctx context.Context, req *Request) *Request

// Pipeline is an ordered list of stages applied in sequence. Built once and
// shared read-only across all workers.
type Pipeline struct {
	stages []Stage
}

// Handle runs the request through every stage in order.
func (p *Pipeline) Handle(ctx context.Context, req *Request) *Request {
	for _, stage := range p.stages {
		req = stage(ctx, req)
	}
	return req
}

// Validation fails requests with empty source text, no target languages,
// or a non-positive index. Valid requests pass through unchanged.
func Validation() Stage {
	return func(_ context.Context, req *Request) *Request {
		if req.Error != "" {
			return req
		}

		switch {
		case strings.TrimSpace(req.SourceText) == "":
			req.MarkFailure("empty source text")
		case len(req.TargetLangs) == 0:
			req.MarkFailure("no target languages")
		case req.Index <= 0:
			req.MarkFailure("invalid index")
		}
		return req
	}
}

// Execution invokes the remote translator with bounded retries and a
// linearly increasing backoff between attempts. Attempts are strictly
// sequential; the adapter call has no side effects before success, so a
// repeat never double-applies.
func Execution(exec translator.Executor, maxAttempts int, baseDelay, stepDelay time.Duration) Stage {
	return func(ctx context.Context, req *Request) *Request {
		if req.Error != "" {
			return req
		}

		for req.AttemptCount < maxAttempts {
			req.AttemptCount++

			result := exec.Execute(ctx, req.SourceText, req.Context, req.TargetLangs)
			req.SetTokenUsage(result.InputTokens, result.OutputTokens)

			if result.OK && len(result.Translations) > 0 {
				req.MarkSuccess(result.Translations)
				break
			}

			if req.AttemptCount < maxAttempts {
				delay := baseDelay + time.Duration(req.AttemptCount)*stepDelay
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					req.MarkFailure(fmt.Sprintf("cancelled: %v", ctx.Err()))
					return req
				}
			}
		}

		if !req.Success {
			req.MarkFailure(fmt.Sprintf("max retry attempts exceeded (%d)", maxAttempts))
		}
		return req
	}
}

// Persistence writes accepted translations into the segment store. Only
// languages present in the request's target set are written; a store write
// failure is logged but never flips a successful translation back to failed.
func Persistence(repo *store.Repository) Stage {
	return func(_ context.Context, req *Request) *Request {
		if !req.Success || len(req.Translations) == 0 {
			return req
		}

		for langCode, text := range req.Translations {
			if !slices.Contains(req.TargetLangs, langCode) {
				continue
			}
			if err := repo.UpdateText(req.Index, langCode, text); err != nil {
				log.Error("[index %d] failed to persist %s: %v", req.Index, langCode, err)
			}
		}
		return req
	}
}

// Reporting is the terminal stage; it records the outcome and never mutates
// the translation result.
func Reporting() Stage {
	return func(_ context.Context, req *Request) *Request {
		if req.Success {
			log.Info("[%d] success (attempts: %d, tokens: %d/%d)",
				req.Index, req.AttemptCount, req.InputTokens, req.OutputTokens)
		} else {
			log.Error("[%d] failed: %s (attempts: %d)", req.Index, req.Error, req.AttemptCount)
		}
		return req
	}
}
