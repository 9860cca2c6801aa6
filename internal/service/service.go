package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/kosub/subtrans/internal/checkpoint"
	"github.com/kosub/subtrans/internal/config"
	"github.com/kosub/subtrans/internal/history"
	"github.com/kosub/subtrans/internal/llm"
	"github.com/kosub/subtrans/internal/orchestrator"
	"github.com/kosub/subtrans/internal/pipeline"
	"github.com/kosub/subtrans/internal/store"
	"github.com/kosub/subtrans/internal/translator"
	"github.com/kosub/subtrans/pkg/log"
)

// RunTranslation builds the full component graph, runs one translation pass,
// and tears everything down before returning. Every invocation gets fresh
// clients and stores so a failed run never leaks state into the next one.
func RunTranslation(ctx context.Context, cfg *config.Config, opts orchestrator.RunOptions) (orchestrator.Summary, error) {
	orch, hist, err := buildOrchestrator(cfg)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	defer closeHistory(hist)

	return orch.Run(ctx, opts)
}

// RunRetryFailed builds the component graph and runs the manual failed-item
// sweep over the durable subtitle files.
func RunRetryFailed(ctx context.Context, cfg *config.Config) (orchestrator.Summary, error) {
	orch, hist, err := buildOrchestrator(cfg)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	defer closeHistory(hist)

	return orch.RetryFailed(ctx)
}

func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *history.SQLiteStore, error) {
	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.TimeoutSeconds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create llm client: %w", err)
	}

	repo, err := store.NewRepository(cfg.Translate.SRTDir, cfg.Translate.SourceFile, cfg.Translate.LangCodes)
	if err != nil {
		return nil, nil, fmt.Errorf("load subtitle store: %w", err)
	}

	executor := translator.NewLLMExecutor(client, cfg.Patterns, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)

	pipe, err := pipeline.NewBuilder().
		AddValidation().
		AddExecution(executor, cfg.Translate.MaxRetries).
		AddPersistence(repo).
		AddReporting().
		Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}

	ckpt := checkpoint.NewManager(cfg.Translate.SRTDir)

	orchOpts := []orchestrator.Option{}
	hist, err := history.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		log.Error("Run history disabled: %v", err)
		hist = nil
	} else {
		orchOpts = append(orchOpts, orchestrator.WithHistory(hist))
	}

	return orchestrator.New(cfg, repo, pipe, ckpt, orchOpts...), hist, nil
}

func closeHistory(hist *history.SQLiteStore) {
	if hist == nil {
		return
	}
	if err := hist.Close(); err != nil {
		log.Error("Failed to close history store: %v", err)
	}
}

// TransService schedules repeated translation runs on a cron expression.
type TransService struct {
	cfg      *config.Config
	cronExpr string
	cron     *cron.Cron
}

func NewTransService(cfg *config.Config, c *cron.Cron) *TransService {
	return &TransService{
		cfg:      cfg,
		cronExpr: cfg.Daemon.CronExpr,
		cron:     c,
	}
}

var singleflightGroup singleflight.Group

// Schedule registers the translation run with the cron scheduler. Overlapping
// triggers collapse into the in-flight run via singleflight.
func (s *TransService) Schedule(ctx context.Context) error {
	log.Info("Scheduling translation runs: %q", s.cronExpr)

	runFunc := func() {
		_, _, _ = singleflightGroup.Do("run", func() (any, error) {
			summary, err := RunTranslation(ctx, s.cfg, orchestrator.RunOptions{})
			if err != nil {
				log.Error("Scheduled run failed: %v", err)
				return nil, err
			}
			log.Info("Scheduled run done: %d success, %d failed", summary.Success, summary.Failed)
			return nil, nil
		})
	}
	_, err := s.cron.AddFunc(s.cronExpr, runFunc)
	return err
}
