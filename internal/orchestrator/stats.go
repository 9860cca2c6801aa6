package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/kosub/subtrans/internal/pipeline"
)

// Summary is a point-in-time copy of the run counters.
type Summary struct {
	TotalItems    int
	Processed     int
	Success       int
	Failed        int
	InputTokens   int
	OutputTokens  int
	LastIndex     int
	FailedIndices []int
	Duration      time.Duration
}

// runStats accumulates counters for one run. Workers report through the
// collector goroutine, but recovery rounds and the final flush also read it,
// so every access goes through the mutex.
type runStats struct {
	mu           sync.Mutex
	totalItems   int
	processed    int
	success      int
	failed       int
	inputTokens  int
	outputTokens int
	lastIndex    int
	failedErrs   map[int]string
	startedAt    time.Time
}

func newRunStats(totalItems int) *runStats {
	return &runStats{
		totalItems: totalItems,
		failedErrs: make(map[int]string),
		startedAt:  time.Now(),
	}
}

// record folds a completed request into the counters and returns the new
// processed count.
func (s *runStats) record(req *pipeline.Request) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	s.inputTokens += req.InputTokens
	s.outputTokens += req.OutputTokens
	if req.Index > s.lastIndex {
		s.lastIndex = req.Index
	}
	if req.Success {
		s.success++
	} else {
		s.failed++
		s.failedErrs[req.Index] = req.Error
	}
	return s.processed
}

// recordFailure marks an item failed without a completed request, such as a
// worker that never reported back in time.
func (s *runStats) recordFailure(index int, reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	s.failed++
	if index > s.lastIndex {
		s.lastIndex = index
	}
	s.failedErrs[index] = reason
	return s.processed
}

// recordRecovery folds a recovery attempt for an already-failed item. A
// success moves the item from failed to success; a failure keeps it failed
// with the fresher error text.
func (s *runStats) recordRecovery(req *pipeline.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inputTokens += req.InputTokens
	s.outputTokens += req.OutputTokens
	if req.Success {
		if _, ok := s.failedErrs[req.Index]; ok {
			delete(s.failedErrs, req.Index)
			s.failed--
			s.success++
		}
		return
	}
	s.failedErrs[req.Index] = req.Error
}

// failedIndices returns the currently failed item indices, ascending.
func (s *runStats) failedIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices := make([]int, 0, len(s.failedErrs))
	for index := range s.failedErrs {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

func (s *runStats) failureReason(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedErrs[index]
}

func (s *runStats) snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices := make([]int, 0, len(s.failedErrs))
	for index := range s.failedErrs {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	return Summary{
		TotalItems:    s.totalItems,
		Processed:     s.processed,
		Success:       s.success,
		Failed:        s.failed,
		InputTokens:   s.inputTokens,
		OutputTokens:  s.outputTokens,
		LastIndex:     s.lastIndex,
		FailedIndices: indices,
		Duration:      time.Since(s.startedAt),
	}
}
