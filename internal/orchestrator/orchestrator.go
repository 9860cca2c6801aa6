package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kosub/subtrans/internal/checkpoint"
	"github.com/kosub/subtrans/internal/config"
	"github.com/kosub/subtrans/internal/history"
	"github.com/kosub/subtrans/internal/pipeline"
	"github.com/kosub/subtrans/internal/store"
	"github.com/kosub/subtrans/pkg/log"
)

const (
	progressLogEvery   = 5
	autoRecoveryRounds = 2
	manualSweepRounds  = 3

	defaultBatchPause = 100 * time.Millisecond
	defaultItemDelay  = 2 * time.Second
	defaultRoundDelay = 3 * time.Second
)

// RunOptions control one run. StartIndex below 1 is clamped to 1; runs never
// resume implicitly, resuming from a checkpoint means passing its last index
// here explicitly.
type RunOptions struct {
	StartIndex int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory attaches a run-history store. Without it runs are not recorded.
func WithHistory(hist *history.SQLiteStore) Option {
	return func(o *Orchestrator) {
		o.hist = hist
	}
}

// WithPacing overrides the inter-batch, inter-item, and inter-round delays.
func WithPacing(batchPause, itemDelay, roundDelay time.Duration) Option {
	return func(o *Orchestrator) {
		o.batchPause = batchPause
		o.itemDelay = itemDelay
		o.roundDelay = roundDelay
	}
}

// Orchestrator drives batches of segment translations through the pipeline
// with a bounded worker pool, periodic checkpoints, and bounded recovery
// rounds for failed segments.
type Orchestrator struct {
	cfg  *config.Config
	repo *store.Repository
	pipe *pipeline.Pipeline
	ckpt *checkpoint.Manager
	hist *history.SQLiteStore

	batchPause time.Duration
	itemDelay  time.Duration
	roundDelay time.Duration
}

func New(cfg *config.Config, repo *store.Repository, pipe *pipeline.Pipeline, ckpt *checkpoint.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		repo:       repo,
		pipe:       pipe,
		ckpt:       ckpt,
		batchPause: defaultBatchPause,
		itemDelay:  defaultItemDelay,
		roundDelay: defaultRoundDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run translates every segment from opts.StartIndex through the end of the
// source table. Cancelling the context stops new batches and recovery rounds;
// the final flush and summary always happen.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	startIndex := opts.StartIndex
	if startIndex < 1 {
		startIndex = 1
	}
	total := o.repo.Len()
	if startIndex > total {
		log.Info("Nothing to translate: start index %d beyond %d items", startIndex, total)
		return Summary{TotalItems: 0}, nil
	}

	stats := newRunStats(total - startIndex + 1)
	run := o.startHistoryRun(ctx, startIndex, stats.totalItems)

	log.Info("Starting translation run: items %d-%d, langs [%s], model %s, %d workers, batch size %d",
		startIndex, total, strings.Join(o.cfg.Translate.LangCodes, ","), o.cfg.LLM.Model,
		o.cfg.Pool.WorkerCount, o.cfg.Pool.BatchSize)

	sem := make(chan struct{}, o.cfg.Pool.WorkerCount)
	for batchStart := startIndex; batchStart <= total; batchStart += o.cfg.Pool.BatchSize {
		if ctx.Err() != nil {
			log.Warn("Shutdown requested, no further batches will start")
			break
		}
		batchEnd := batchStart + o.cfg.Pool.BatchSize - 1
		if batchEnd > total {
			batchEnd = total
		}
		o.processBatch(ctx, sem, stats, batchStart, batchEnd)
		if batchEnd < total {
			sleepCtx(ctx, o.batchPause)
		}
	}

	if ctx.Err() == nil {
		o.recoverFailed(ctx, stats, autoRecoveryRounds)
	}

	o.flush(stats)
	summary := stats.snapshot()
	o.finishHistoryRun(run, stats, summary)
	o.logSummary("Run", summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// RetryFailed scans the durable language tables for untranslated segments and
// reprocesses them sequentially with a bounded number of rounds.
func (o *Orchestrator) RetryFailed(ctx context.Context) (Summary, error) {
	indices := o.repo.FailedIndices()
	stats := newRunStats(len(indices))
	if len(indices) == 0 {
		log.Info("No failed segments found")
		return stats.snapshot(), nil
	}

	log.Info("Found %d failed segments, retrying with up to %d rounds", len(indices), manualSweepRounds)
	run := o.startHistoryRun(ctx, 0, len(indices))

	for _, index := range indices {
		stats.recordFailure(index, "not translated")
	}

	o.recoverFailed(ctx, stats, manualSweepRounds)

	o.flush(stats)
	summary := stats.snapshot()
	o.finishHistoryRun(run, stats, summary)
	o.logSummary("Retry", summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("retry interrupted: %w", err)
	}
	return summary, nil
}

// processBatch submits one wave of indices to the worker pool and collects
// the results. A batch that exceeds the batch timeout grants each straggler a
// short grace window before its items are marked failed.
func (o *Orchestrator) processBatch(ctx context.Context, sem chan struct{}, stats *runStats, first, last int) {
	count := last - first + 1
	results := make(chan *pipeline.Request, count)

	for index := first; index <= last; index++ {
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem }()
			results <- o.pipe.Handle(ctx, o.newRequest(i))
		}(index)
	}

	pending := make(map[int]struct{}, count)
	for index := first; index <= last; index++ {
		pending[index] = struct{}{}
	}

	deadline := time.NewTimer(time.Duration(o.cfg.Pool.BatchTimeoutSeconds) * time.Second)
	defer deadline.Stop()

	for len(pending) > 0 {
		select {
		case req := <-results:
			delete(pending, req.Index)
			o.afterItem(stats, stats.record(req))
		case <-deadline.C:
			log.Warn("Batch %d-%d exceeded timeout, draining stragglers", first, last)
			o.drainStragglers(results, pending, stats, "result timeout")
			return
		case <-ctx.Done():
			o.drainStragglers(results, pending, stats, "cancelled")
			return
		}
	}
}

// drainStragglers gives the remaining workers of an interrupted batch one
// grace window per result, then marks whatever is still missing as failed
// with the given reason. Late results are discarded.
func (o *Orchestrator) drainStragglers(results <-chan *pipeline.Request, pending map[int]struct{}, stats *runStats, reason string) {
	grace := time.Duration(o.cfg.Pool.ResultTimeoutSeconds) * time.Second
	for len(pending) > 0 {
		select {
		case req := <-results:
			delete(pending, req.Index)
			o.afterItem(stats, stats.record(req))
		case <-time.After(grace):
			for index := range pending {
				o.afterItem(stats, stats.recordFailure(index, reason))
			}
			return
		}
	}
}

// recoverFailed reprocesses failed segments sequentially for up to rounds
// rounds, pausing between items and rounds to ease backend pressure. Each
// round that recovers at least one segment is flushed to disk.
func (o *Orchestrator) recoverFailed(ctx context.Context, stats *runStats, rounds int) {
	for round := 1; round <= rounds; round++ {
		failed := stats.failedIndices()
		if len(failed) == 0 {
			return
		}
		if ctx.Err() != nil {
			log.Warn("Shutdown requested, skipping remaining recovery rounds")
			return
		}

		log.Info("Recovery round %d/%d: %d failed segments", round, rounds, len(failed))
		recovered := 0
		for i, index := range failed {
			if ctx.Err() != nil {
				break
			}
			req := o.pipe.Handle(ctx, o.newRequest(index))
			stats.recordRecovery(req)
			if req.Success {
				recovered++
			}
			if i < len(failed)-1 {
				sleepCtx(ctx, o.itemDelay)
			}
		}

		log.Info("Recovery round %d recovered %d/%d", round, recovered, len(failed))
		if recovered > 0 {
			o.flush(stats)
		}
		if round < rounds && ctx.Err() == nil {
			sleepCtx(ctx, o.roundDelay)
		}
	}
}

func (o *Orchestrator) newRequest(index int) *pipeline.Request {
	return pipeline.NewRequest(
		index,
		o.repo.SourceText(index),
		o.repo.Context(index, o.cfg.Translate.ContextSize),
		o.cfg.Translate.LangCodes,
	)
}

// afterItem runs the per-item cadence work: progress logging and periodic
// checkpoint flushes. Called only from the collector goroutine.
func (o *Orchestrator) afterItem(stats *runStats, processed int) {
	if processed%progressLogEvery == 0 {
		snap := stats.snapshot()
		log.Info("Progress: %d/%d (success %d, failed %d)",
			snap.Processed, snap.TotalItems, snap.Success, snap.Failed)
	}
	if o.cfg.Pool.SaveInterval > 0 && processed%o.cfg.Pool.SaveInterval == 0 {
		o.flush(stats)
	}
}

// flush saves every language table and writes a progress checkpoint.
func (o *Orchestrator) flush(stats *runStats) {
	if err := o.repo.SaveAll(); err != nil {
		log.Error("Failed to save subtitle files: %v", err)
	}

	snap := stats.snapshot()
	record := checkpoint.Record{
		LangCodes:         strings.Join(o.cfg.Translate.LangCodes, ","),
		LastIndex:         snap.LastIndex,
		ModelName:         o.cfg.LLM.Model,
		TotalInputTokens:  snap.InputTokens,
		TotalOutputTokens: snap.OutputTokens,
	}
	if err := o.ckpt.Save(record); err != nil {
		log.Error("Failed to write checkpoint: %v", err)
	}
}

func (o *Orchestrator) startHistoryRun(ctx context.Context, startIndex, totalItems int) *history.Run {
	if o.hist == nil {
		return nil
	}
	run := &history.Run{
		ID:         uuid.NewString(),
		SourceFile: o.repo.SourcePath(),
		LangCodes:  strings.Join(o.cfg.Translate.LangCodes, ","),
		ModelName:  o.cfg.LLM.Model,
		StartIndex: startIndex,
		TotalItems: totalItems,
		StartedAt:  time.Now(),
	}
	if err := o.hist.StartRun(ctx, run); err != nil {
		log.Error("Failed to record run start: %v", err)
		return nil
	}
	return run
}

func (o *Orchestrator) finishHistoryRun(run *history.Run, stats *runStats, summary Summary) {
	if o.hist == nil || run == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run.SuccessCount = summary.Success
	run.FailedCount = summary.Failed
	run.InputTokens = summary.InputTokens
	run.OutputTokens = summary.OutputTokens
	if err := o.hist.FinishRun(ctx, run); err != nil {
		log.Error("Failed to record run finish: %v", err)
	}

	failures := make([]history.Failure, 0, len(summary.FailedIndices))
	for _, index := range summary.FailedIndices {
		failures = append(failures, history.Failure{
			RunID: run.ID,
			Index: index,
			Error: stats.failureReason(index),
		})
	}
	if err := o.hist.RecordFailures(ctx, run.ID, failures); err != nil {
		log.Error("Failed to record run failures: %v", err)
	}
}

func (o *Orchestrator) logSummary(kind string, summary Summary) {
	log.Info("%s finished in %s: %d/%d processed, %d success, %d failed, tokens %d/%d",
		kind, summary.Duration.Round(time.Second), summary.Processed, summary.TotalItems,
		summary.Success, summary.Failed, summary.InputTokens, summary.OutputTokens)
	if len(summary.FailedIndices) > 0 {
		log.Warn("Failed segment indices: %v", summary.FailedIndices)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
