package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-pipeline/internal/dedup"
	"github.com/zombor/invoice-pipeline/internal/optimistic"
	"github.com/zombor/invoice-pipeline/internal/scanning"
	"github.com/zombor/invoice-pipeline/internal/upload"
)

// IDGenerator generates unique IDs for invoices
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates UUID based IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// FingerprintIndex looks up and records content fingerprints
type FingerprintIndex interface {
	dedup.Classifier
	Record(ctx context.Context, fingerprint string, entry dedup.Entry) error
}

// Notifier receives rollback notifications for optimistic mutations. The
// (excluded) UI layer consumes these to revert its local state.
type Notifier interface {
	Rollback(entityID string, original optimistic.Snapshot)
}

// NopNotifier discards rollback notifications
type NopNotifier struct{}

func (NopNotifier) Rollback(string, optimistic.Snapshot) {}

// Owner identifies the account performing an upload
type Owner struct {
	ID    string
	Email string
}

// Service handles invoice operations: batch uploads through the pipeline
// and optimistic single-entity mutations. It keeps an in-memory read model
// that mutations touch immediately and rollbacks restore.
type Service struct {
	db          DB
	storage     Storage
	extractor   scanning.Extractor
	index       FingerprintIndex
	coordinator *optimistic.Coordinator
	reporter    upload.Reporter
	notifier    Notifier
	idGenerator IDGenerator
	timeSource  TimeSource
	concurrency int
	windowPause time.Duration

	mu    sync.RWMutex
	cache map[string]*Invoice
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithReporter sets the progress reporter for batch uploads
func WithReporter(r upload.Reporter) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithNotifier sets the rollback notifier
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithIDGenerator overrides the ID generator for testing
func WithIDGenerator(g IDGenerator) ServiceOption {
	return func(s *Service) {
		if g != nil {
			s.idGenerator = g
		}
	}
}

// WithTimeSource overrides the time source for testing
func WithTimeSource(t TimeSource) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.timeSource = t
		}
	}
}

// WithUploadConcurrency sets the batch worker pool size
func WithUploadConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithUploadWindowPause sets the pause between batch concurrency windows
func WithUploadWindowPause(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d >= 0 {
			s.windowPause = d
		}
	}
}

// NewService creates a Service and loads the read model from the database
func NewService(db DB, storage Storage, extractor scanning.Extractor, index FingerprintIndex, coordinator *optimistic.Coordinator, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		index:       index,
		coordinator: coordinator,
		reporter:    upload.NopReporter{},
		notifier:    NopNotifier{},
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
		concurrency: upload.DefaultConcurrency,
		windowPause: upload.DefaultWindowPause,
		cache:       make(map[string]*Invoice),
	}
	for _, opt := range opts {
		opt(s)
	}

	invoices, err := db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("loading invoices: %w", err)
	}
	for _, invoice := range invoices {
		s.cache[invoice.ID] = invoice
	}

	return s, nil
}

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length; phone-generated filenames can be absurdly long
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`).ReplaceAllString(base, "")
	base = regexp.MustCompile(`\s+`).ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "invoice"
	}
	return base + ext
}

// contentTypeFor guesses a content type from the file extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// Upload pipeline collaborators. Each adapter maps one upload contract
// onto the service's injected dependencies.

// fsSource reads batch files from the local filesystem
type fsSource struct{}

func (fsSource) ReadFile(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, contentTypeFor(path), nil
}

// contentHasher fingerprints file bytes
type contentHasher struct{}

func (contentHasher) Fingerprint(data []byte) string {
	return dedup.Fingerprint(data)
}

// storeAdapter saves uploaded bytes into invoice storage
type storeAdapter struct {
	service *Service
}

func (a storeAdapter) Upload(ctx context.Context, fileName string, data []byte, contentType string) (string, error) {
	id := a.service.idGenerator.Generate()
	return a.service.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(fileName)), data)
}

// extractorAdapter runs the injected extraction service
type extractorAdapter struct {
	service *Service
}

func (a extractorAdapter) Extract(ctx context.Context, data []byte, contentType string) (*scanning.InvoiceData, error) {
	return a.service.extractor.ExtractInvoice(data, contentType)
}

// persisterAdapter creates the invoice entity and records its fingerprint
type persisterAdapter struct {
	service *Service
	owner   Owner
}

func (a persisterAdapter) Persist(ctx context.Context, rec upload.Record) (string, error) {
	return a.service.persistUpload(ctx, a.owner, rec)
}

// persistUpload creates exactly one invoice for a successfully processed
// file, then records the fingerprint so re-uploads classify as duplicates
func (s *Service) persistUpload(ctx context.Context, owner Owner, rec upload.Record) (string, error) {
	now := s.timeSource.Now()

	date, err := time.Parse("2006-01-02", rec.Fields.Date)
	if err != nil {
		date = now
	}

	invoice := &Invoice{
		ID:            s.idGenerator.Generate(),
		InvoiceNumber: rec.Fields.InvoiceNumber,
		Vendor:        rec.Fields.Vendor,
		Date:          date,
		Amount:        int(math.Round(rec.Fields.Amount * 100)),
		Currency:      rec.Fields.Currency,
		Status:        StatusPending,
		Filename:      rec.StoredRef,
		ContentType:   rec.ContentType,
		Fingerprint:   rec.Fingerprint,
		OwnerID:       owner.ID,
		OwnerEmail:    owner.Email,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.SaveInvoice(invoice); err != nil {
		// Clean up the stored file so a retry starts from scratch
		s.storage.Delete(rec.StoredRef)
		return "", fmt.Errorf("saving invoice to database: %w", err)
	}

	if err := s.index.Record(ctx, rec.Fingerprint, dedup.Entry{
		OwnerID:       owner.ID,
		OwnerEmail:    owner.Email,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		UploadedAt:    now,
	}); err != nil {
		// The invoice exists; a missing index entry only weakens dedup
		slog.Warn("Failed to record fingerprint", "invoice_id", invoice.ID, "error", err)
	}

	s.mu.Lock()
	s.cache[invoice.ID] = invoice
	s.mu.Unlock()

	return invoice.ID, nil
}

// BatchUpload drives every file through the upload pipeline and returns
// per-file results plus the aggregate summary
func (s *Service) BatchUpload(ctx context.Context, owner Owner, filePaths []string) ([]upload.Result, upload.Summary, error) {
	if len(filePaths) == 0 {
		return nil, upload.Summary{}, fmt.Errorf("at least one file is required")
	}
	if owner.ID == "" {
		return nil, upload.Summary{}, fmt.Errorf("owner is required")
	}

	deps := upload.Deps{
		Source:     fsSource{},
		Hasher:     contentHasher{},
		Classifier: s.index,
		Store:      storeAdapter{service: s},
		Extractor:  extractorAdapter{service: s},
		Persister:  persisterAdapter{service: s, owner: owner},
	}

	orchestrator := upload.NewOrchestrator(deps, s.reporter,
		upload.WithConcurrency(s.concurrency),
		upload.WithWindowPause(s.windowPause),
	)
	results, summary := orchestrator.Run(ctx, owner.ID, filePaths)
	return results, summary, nil
}

// GetInvoice retrieves an invoice from the read model
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := s.cache[id]
	if !ok {
		return nil, fmt.Errorf("invoice not found: %s", id)
	}
	return invoice.clone(), nil
}

// ListInvoices returns all invoices, newest first
func (s *Service) ListInvoices() ([]*Invoice, error) {
	s.mu.RLock()
	invoices := make([]*Invoice, 0, len(s.cache))
	for _, invoice := range s.cache {
		invoices = append(invoices, invoice.clone())
	}
	s.mu.RUnlock()

	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
	return invoices, nil
}

// GetInvoiceFile retrieves the stored file data for an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, string, error) {
	invoice, err := s.GetInvoice(id)
	if err != nil {
		return nil, "", err
	}
	data, err := s.storage.Get(invoice.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice file: %w", err)
	}
	return data, invoice.ContentType, nil
}

// HasPendingMutation reports whether an optimistic mutation on the entity
// is still awaiting its remote result
func (s *Service) HasPendingMutation(id string) bool {
	return s.coordinator.HasPending(id)
}

// UpdateStatus optimistically changes an invoice's status. The read model
// reflects the new status immediately; if the database write fails the
// status is restored and the notifier receives the rollback.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	s.mu.Lock()
	current, ok := s.cache[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("invoice not found: %s", id)
	}
	original := StatusSnapshot{Status: current.Status}
	updated := current.clone()
	updated.Status = status
	updated.UpdatedAt = s.timeSource.Now()
	s.cache[id] = updated
	s.mu.Unlock()

	s.coordinator.Apply(ctx, optimistic.Operation{
		Kind:     optimistic.KindStatusUpdate,
		EntityID: id,
		Original: original,
		New:      StatusSnapshot{Status: status},
	}, func(ctx context.Context) error {
		return s.db.SaveInvoice(updated)
	}, s.rollbackHooks())

	return nil
}

// UpdateInvoice optimistically replaces an invoice's editable fields
func (s *Service) UpdateInvoice(ctx context.Context, updated *Invoice) error {
	s.mu.Lock()
	current, ok := s.cache[updated.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("invoice not found: %s", updated.ID)
	}
	original := UpdateSnapshot{Invoice: current}
	replacement := updated.clone()
	replacement.UpdatedAt = s.timeSource.Now()
	s.cache[updated.ID] = replacement
	s.mu.Unlock()

	s.coordinator.Apply(ctx, optimistic.Operation{
		Kind:     optimistic.KindUpdate,
		EntityID: updated.ID,
		Original: original,
		New:      UpdateSnapshot{Invoice: replacement},
	}, func(ctx context.Context) error {
		return s.db.SaveInvoice(replacement)
	}, s.rollbackHooks())

	return nil
}

// DeleteInvoice optimistically removes an invoice. The entity disappears
// from the read model immediately and reappears if the remote delete fails.
func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	s.mu.Lock()
	current, ok := s.cache[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("invoice not found: %s", id)
	}
	original := DeleteSnapshot{Invoice: current}
	delete(s.cache, id)
	s.mu.Unlock()

	s.coordinator.Apply(ctx, optimistic.Operation{
		Kind:     optimistic.KindDelete,
		EntityID: id,
		Original: original,
	}, func(ctx context.Context) error {
		if err := s.storage.Delete(current.Filename); err != nil {
			// Keep going: an orphaned file is preferable to a phantom record
			slog.Warn("Failed to delete file", "filename", current.Filename, "error", err)
		}
		return s.db.DeleteInvoice(id)
	}, s.rollbackHooks())

	return nil
}

// BatchUpdateStatus optimistically changes the status of several invoices
// behind one remote call. If that call fails, every invoice in the batch
// is rolled back, even ones the remote side may have already applied.
func (s *Service) BatchUpdateStatus(ctx context.Context, ids []string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	if len(ids) == 0 {
		return fmt.Errorf("at least one invoice is required")
	}

	now := s.timeSource.Now()

	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.cache[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("invoice not found: %s", id)
		}
	}

	ops := make([]optimistic.Operation, 0, len(ids))
	updates := make([]*Invoice, 0, len(ids))
	for _, id := range ids {
		current := s.cache[id]
		ops = append(ops, optimistic.Operation{
			Kind:     optimistic.KindBatchStatusUpdate,
			EntityID: id,
			Original: StatusSnapshot{Status: current.Status},
			New:      StatusSnapshot{Status: status},
		})
		updated := current.clone()
		updated.Status = status
		updated.UpdatedAt = now
		s.cache[id] = updated
		updates = append(updates, updated)
	}
	s.mu.Unlock()

	s.coordinator.ApplyBatch(ctx, ops, func(ctx context.Context) error {
		for _, updated := range updates {
			if err := s.db.SaveInvoice(updated); err != nil {
				return fmt.Errorf("updating invoice %s: %w", updated.ID, err)
			}
		}
		return nil
	}, s.rollbackHooks())

	return nil
}

// rollbackHooks restores the read model from the original snapshot and
// forwards the rollback to the notifier
func (s *Service) rollbackHooks() optimistic.Hooks {
	return optimistic.Hooks{
		RolledBack: func(entityID string, original optimistic.Snapshot) {
			s.restore(entityID, original)
			s.notifier.Rollback(entityID, original)
		},
	}
}

// restore applies an original snapshot back onto the read model
func (s *Service) restore(entityID string, original optimistic.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch snap := original.(type) {
	case StatusSnapshot:
		if current, ok := s.cache[entityID]; ok {
			reverted := current.clone()
			reverted.Status = snap.Status
			s.cache[entityID] = reverted
		}
	case DeleteSnapshot:
		s.cache[entityID] = snap.Invoice
	case UpdateSnapshot:
		s.cache[entityID] = snap.Invoice
	default:
		slog.Warn("Unknown snapshot type on rollback", "entity_id", entityID)
	}
}
