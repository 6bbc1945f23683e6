package upload

import "log/slog"

// Reporter receives live progress updates and the final batch outcome.
// Implementations must tolerate concurrent calls from multiple workers.
type Reporter interface {
	// UploadProgress is pushed on every stage change of every file
	UploadProgress(p Progress)

	// BatchDone is pushed exactly once, after every file has a terminal result
	BatchDone(summary Summary, results []Result)
}

// NopReporter discards all updates
type NopReporter struct{}

func (NopReporter) UploadProgress(Progress) {}

func (NopReporter) BatchDone(Summary, []Result) {}

// LogReporter writes progress to the default slog logger
type LogReporter struct{}

func (LogReporter) UploadProgress(p Progress) {
	slog.Info("upload progress",
		"file", p.FileName,
		"stage", p.Stage.String(),
		"fraction", p.Fraction,
		"message", p.Message,
		"error", p.Err,
	)
}

func (LogReporter) BatchDone(summary Summary, results []Result) {
	slog.Info("batch done",
		"total", summary.Total(),
		"success", summary.Success,
		"duplicate", summary.Duplicate,
		"failed", summary.Failure,
		"cancelled", summary.Cancelled,
		"cross_user_duplicate", summary.HasCrossUserDuplicate,
	)
}
