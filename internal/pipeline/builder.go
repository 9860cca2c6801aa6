package pipeline

import (
	"fmt"
	"time"

	"github.com/kosub/subtrans/internal/store"
	"github.com/kosub/subtrans/internal/translator"
)

// Default backoff for the execution stage: base + attempt*step.
const (
	DefaultRetryBaseDelay = time.Second
	DefaultRetryStepDelay = 500 * time.Millisecond
)

// Builder assembles the ordered stage list. One pipeline is built per
// orchestrator instance and shared by all workers.
type Builder struct {
	stages []Stage
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddValidation appends the validation stage.
func (b *Builder) AddValidation() *Builder {
	b.stages = append(b.stages, Validation())
	return b
}

// AddExecution appends the retrying execution stage.
func (b *Builder) AddExecution(exec translator.Executor, maxAttempts int) *Builder {
	b.stages = append(b.stages, Execution(exec, maxAttempts, DefaultRetryBaseDelay, DefaultRetryStepDelay))
	return b
}

// AddPersistence appends the store-writing stage.
func (b *Builder) AddPersistence(repo *store.Repository) *Builder {
	b.stages = append(b.stages, Persistence(repo))
	return b
}

// AddReporting appends the terminal reporting stage.
func (b *Builder) AddReporting() *Builder {
	b.stages = append(b.stages, Reporting())
	return b
}

// AddStage appends an arbitrary stage. Used by tests to insert spies.
func (b *Builder) AddStage(stage Stage) *Builder {
	b.stages = append(b.stages, stage)
	return b
}

// Build returns the assembled pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if len(b.stages) == 0 {
		return nil, fmt.Errorf("pipeline must have at least one stage")
	}
	stages := make([]Stage, len(b.stages))
	copy(stages, b.stages)
	return &Pipeline{stages: stages}, nil
}
