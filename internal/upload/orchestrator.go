package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultConcurrency caps simultaneous in-flight jobs. Three is a
	// deliberate server-load control, not an architectural constant.
	DefaultConcurrency = 3

	// DefaultWindowPause is the load-shaping pause inserted after each
	// fully drained concurrency window.
	DefaultWindowPause = 500 * time.Millisecond
)

// Orchestrator runs many upload jobs against a bounded worker pool and
// aggregates their terminal results into one batch summary.
type Orchestrator struct {
	deps        Deps
	reporter    Reporter
	concurrency int
	windowPause time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithConcurrency sets the worker pool size
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithWindowPause sets the pause between concurrency windows
func WithWindowPause(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.windowPause = d
		}
	}
}

// NewOrchestrator creates an orchestrator with the given collaborators
func NewOrchestrator(deps Deps, reporter Reporter, opts ...Option) *Orchestrator {
	if reporter == nil {
		reporter = NopReporter{}
	}
	o := &Orchestrator{
		deps:        deps,
		reporter:    reporter,
		concurrency: DefaultConcurrency,
		windowPause: DefaultWindowPause,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every file in the batch and returns each file's terminal
// result plus the aggregate summary. Run always completes and always
// accounts for every submitted file, even when all of them fail.
//
// Files are scheduled in windows of the concurrency limit; each window is
// fully drained before the next starts, with a short pause in between.
// When ctx is cancelled, in-flight jobs finish their current stage and
// files that never started are tallied as cancelled without touching any
// collaborator. Completion order across files is unspecified; results are
// returned in submission order keyed by file path.
func (o *Orchestrator) Run(ctx context.Context, ownerID string, files []string) ([]Result, Summary) {
	resultsByPath := make(map[string]Result, len(files))
	var mu sync.Mutex

	remaining := files
	for len(remaining) > 0 {
		window := remaining
		if len(window) > o.concurrency {
			window = window[:o.concurrency]
		}
		remaining = remaining[len(window):]

		if ctx.Err() != nil {
			// Unstarted files are never scheduled; mark the current window
			// cancelled along with whatever is left in the queue
			mu.Lock()
			for _, path := range append(window, remaining...) {
				job := NewJob(path, ownerID, o.deps, o.reporter)
				resultsByPath[path] = job.cancelled()
			}
			mu.Unlock()
			break
		}

		var wg sync.WaitGroup
		for _, path := range window {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				job := NewJob(path, ownerID, o.deps, o.reporter)
				result := job.Run(ctx)
				// Exactly one terminal result per file
				mu.Lock()
				resultsByPath[path] = result
				mu.Unlock()
			}(path)
		}
		wg.Wait()

		if len(remaining) > 0 && o.windowPause > 0 {
			select {
			case <-time.After(o.windowPause):
			case <-ctx.Done():
			}
		}
	}

	results := make([]Result, 0, len(files))
	for _, path := range files {
		results = append(results, resultsByPath[path])
	}

	summary := Summarize(results)
	slog.Info("batch complete",
		"total", summary.Total(),
		"success", summary.Success,
		"duplicate", summary.Duplicate,
		"failed", summary.Failure,
		"cancelled", summary.Cancelled,
	)
	o.reporter.BatchDone(summary, results)

	return results, summary
}
