package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/zombor/invoice-pipeline/internal/dedup"
	"github.com/zombor/invoice-pipeline/internal/scanning"
)

// Source reads a local file's bytes and content type
type Source interface {
	ReadFile(path string) (data []byte, contentType string, err error)
}

// Hasher computes a content fingerprint for a file
type Hasher interface {
	Fingerprint(data []byte) string
}

// Store accepts file bytes and returns a storage reference
type Store interface {
	Upload(ctx context.Context, fileName string, data []byte, contentType string) (ref string, err error)
}

// Extractor pulls structured invoice fields out of an uploaded document
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*scanning.InvoiceData, error)
}

// Record is everything the persistence collaborator needs to create one entity
type Record struct {
	FileName    string
	StoredRef   string
	ContentType string
	Fingerprint string
	OwnerID     string
	Fields      *scanning.InvoiceData
}

// Persister creates the downstream entity for a successfully processed file.
// It must be idempotent with respect to the fingerprint: persisting the same
// content twice never creates a second entity.
type Persister interface {
	Persist(ctx context.Context, rec Record) (entityID string, err error)
}

// Deps bundles every collaborator a job needs
type Deps struct {
	Source     Source
	Hasher     Hasher
	Classifier dedup.Classifier
	Store      Store
	Extractor  Extractor
	Persister  Persister
}

// Job carries one file through the stage sequence to a terminal outcome.
// Jobs are single use: a retry is always a fresh Job that starts over at
// hashing, never a resumed one.
type Job struct {
	fileName string
	filePath string
	ownerID  string
	deps     Deps
	reporter Reporter
	stage    Stage
	fraction float64
}

// NewJob creates a job for one file
func NewJob(filePath, ownerID string, deps Deps, reporter Reporter) *Job {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Job{
		fileName: filepath.Base(filePath),
		filePath: filePath,
		ownerID:  ownerID,
		deps:     deps,
		reporter: reporter,
		stage:    StagePreparing,
	}
}

// advance moves the job to the next stage and publishes progress. Once a
// terminal stage is reached the job never leaves it.
func (j *Job) advance(stage Stage, message string) {
	if j.stage.Terminal() {
		return
	}
	j.stage = stage
	// A stage change is the only thing that resets the fraction
	j.fraction = 0
	j.publish(message, "")
}

// step raises the fraction within the current stage; it never decreases
func (j *Job) step(fraction float64, message string) {
	if fraction > j.fraction {
		j.fraction = fraction
	}
	j.publish(message, "")
}

func (j *Job) publish(message, errMsg string) {
	j.reporter.UploadProgress(Progress{
		FileName: j.fileName,
		FilePath: j.filePath,
		Stage:    j.stage,
		Fraction: j.fraction,
		Message:  message,
		Err:      errMsg,
	})
}

// fail moves the job to the terminal error stage with a categorized message
func (j *Job) fail(err error) Result {
	category := Categorize(err)
	j.stage = StageError
	j.fraction = 0
	j.publish("", category.Message())
	return Result{
		FileName: j.fileName,
		FilePath: j.filePath,
		Outcome:  OutcomeError,
		Category: category,
		Err:      category.Message(),
	}
}

// cancelled records that the job stopped before reaching a terminal stage
func (j *Job) cancelled() Result {
	j.publish("cancelled", "")
	return Result{
		FileName: j.fileName,
		FilePath: j.filePath,
		Outcome:  OutcomeCancelled,
	}
}

// Run drives the file through the full stage sequence and returns its
// terminal result. Every failure is folded into an error result so sibling
// jobs are unaffected.
//
// Cancellation is cooperative: collaborator calls are shielded from ctx so
// the stage in flight always completes, and ctx is consulted only between
// stages. A job that observes cancellation before its next stage returns a
// cancelled result instead of advancing.
func (j *Job) Run(ctx context.Context) Result {
	opCtx := context.WithoutCancel(ctx)
	j.publish("queued", "")

	j.advance(StageHashing, "computing fingerprint")
	data, contentType, err := j.deps.Source.ReadFile(j.filePath)
	if err != nil {
		return j.fail(fmt.Errorf("reading file: %w", err))
	}
	fingerprint := j.deps.Hasher.Fingerprint(data)
	j.step(0.5, "checking for duplicates")

	verdict, err := j.deps.Classifier.Classify(opCtx, fingerprint, j.ownerID)
	if err != nil {
		// Fail open: a transient lookup failure never blocks a legitimate
		// upload. The file proceeds as if no duplicate exists.
		slog.Warn("duplicate lookup failed, proceeding with upload",
			"file", j.fileName,
			"error", err,
		)
		verdict = dedup.Verdict{Kind: dedup.VerdictNone}
	}

	switch verdict.Kind {
	case dedup.VerdictSameUser:
		j.stage = StageDuplicate
		j.fraction = 0
		j.publish("already uploaded", "")
		return Result{
			FileName: j.fileName,
			FilePath: j.filePath,
			Outcome:  OutcomeDuplicate,
			EntityID: verdict.ExistingID,
			Category: CategoryDuplicate,
		}
	case dedup.VerdictCrossUser:
		j.stage = StageDuplicate
		j.fraction = 0
		j.publish("uploaded by another account", "")
		return Result{
			FileName:  j.fileName,
			FilePath:  j.filePath,
			Outcome:   OutcomeCrossUserDuplicate,
			CrossUser: verdict.CrossUser,
			Category:  CategoryDuplicate,
		}
	}

	if err := ctx.Err(); err != nil {
		return j.cancelled()
	}

	j.advance(StageUploading, "uploading")
	ref, err := j.deps.Store.Upload(opCtx, j.fileName, data, contentType)
	if err != nil {
		return j.fail(fmt.Errorf("uploading file: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return j.cancelled()
	}

	j.advance(StageProcessing, "extracting invoice details")
	fields, err := j.deps.Extractor.Extract(opCtx, data, contentType)
	if err != nil {
		return j.fail(fmt.Errorf("extracting invoice: %w", err))
	}
	j.step(0.5, "saving invoice")

	entityID, err := j.deps.Persister.Persist(opCtx, Record{
		FileName:    j.fileName,
		StoredRef:   ref,
		ContentType: contentType,
		Fingerprint: fingerprint,
		OwnerID:     j.ownerID,
		Fields:      fields,
	})
	if err != nil {
		return j.fail(fmt.Errorf("persisting invoice: %w", err))
	}

	j.advance(StageSuccess, "done")
	return Result{
		FileName: j.fileName,
		FilePath: j.filePath,
		Outcome:  OutcomeSuccess,
		EntityID: entityID,
	}
}
