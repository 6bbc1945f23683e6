package upload

import "github.com/zombor/invoice-pipeline/internal/dedup"

// Result is the terminal record for one file in a batch
type Result struct {
	FileName string  `json:"file_name"`
	FilePath string  `json:"file_path"`
	Outcome  Outcome `json:"outcome"`

	// EntityID references the persisted invoice, set only on OutcomeSuccess.
	// For OutcomeDuplicate it references the invoice the uploader already owns.
	EntityID string `json:"entity_id,omitempty"`

	// CrossUser carries disclosure details, set only on OutcomeCrossUserDuplicate
	CrossUser *dedup.CrossUserMatch `json:"cross_user_duplicate_info,omitempty"`

	Category ErrorCategory `json:"error_category,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// Retryable reports whether this file should be offered a retry action.
// Duplicates are never retryable: retrying cannot change the outcome.
func (r Result) Retryable() bool {
	switch r.Outcome {
	case OutcomeError:
		return r.Category.Retryable()
	case OutcomeCancelled:
		return true
	}
	return false
}

// Summary is the aggregate view of a completed batch. Every submitted file
// lands in exactly one bucket.
type Summary struct {
	Success               int  `json:"success_count"`
	Duplicate             int  `json:"duplicate_count"`
	Failure               int  `json:"failure_count"`
	Cancelled             int  `json:"cancelled_count"`
	HasCrossUserDuplicate bool `json:"has_cross_user_duplicate"`
}

// Total returns the number of submitted files accounted for
func (s Summary) Total() int {
	return s.Success + s.Duplicate + s.Failure + s.Cancelled
}

// Summarize tallies terminal results into a batch summary
func Summarize(results []Result) Summary {
	var summary Summary
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSuccess:
			summary.Success++
		case OutcomeDuplicate:
			summary.Duplicate++
		case OutcomeCrossUserDuplicate:
			summary.Duplicate++
			summary.HasCrossUserDuplicate = true
		case OutcomeError:
			summary.Failure++
		case OutcomeCancelled:
			summary.Cancelled++
		}
	}
	return summary
}

// RetryablePaths returns the file paths that should be re-queued by a retry
// action. Retried files always run as fresh jobs starting at hashing.
func RetryablePaths(results []Result) []string {
	var paths []string
	for _, r := range results {
		if r.Retryable() {
			paths = append(paths, r.FilePath)
		}
	}
	return paths
}
