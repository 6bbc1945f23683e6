// Package upload implements the batch upload pipeline: per-file jobs that
// carry a local file through hash, duplicate check, upload, extraction and
// persist stages, and an orchestrator that runs many jobs against a bounded
// worker pool while aggregating progress.
package upload

// Stage identifies where a file is in its upload pipeline. Stages advance
// strictly in order; the last three are terminal.
type Stage int

const (
	StagePreparing Stage = iota
	StageHashing
	StageUploading
	StageProcessing
	StageSuccess
	StageDuplicate
	StageError
)

// Terminal reports whether no further transition occurs from this stage
func (s Stage) Terminal() bool {
	switch s {
	case StageSuccess, StageDuplicate, StageError:
		return true
	}
	return false
}

func (s Stage) String() string {
	switch s {
	case StagePreparing:
		return "preparing"
	case StageHashing:
		return "hashing"
	case StageUploading:
		return "uploading"
	case StageProcessing:
		return "processing"
	case StageSuccess:
		return "success"
	case StageDuplicate:
		return "duplicate"
	case StageError:
		return "error"
	}
	return "unknown"
}

// Progress is the live, per-file view of a job. FilePath is the stable
// identity key; completion order across files carries no meaning.
type Progress struct {
	FileName string  `json:"file_name"`
	FilePath string  `json:"file_path"`
	Stage    Stage   `json:"stage"`
	Fraction float64 `json:"fraction"` // fraction complete within the current stage
	Message  string  `json:"message,omitempty"`
	Err      string  `json:"error,omitempty"`
}

// Outcome classifies the terminal state of one file
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDuplicate
	OutcomeCrossUserDuplicate
	OutcomeError
	OutcomeCancelled
)

// MarshalJSON emits the outcome's name rather than its numeric value
func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeCrossUserDuplicate:
		return "cross_user_duplicate"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}
