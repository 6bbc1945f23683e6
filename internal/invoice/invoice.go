package invoice

import (
	"time"

	"github.com/zombor/invoice-pipeline/internal/optimistic"
)

// Status is the review state of an invoice
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusReimbursed Status = "reimbursed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusReimbursed:
		return true
	}
	return false
}

// Invoice represents a persisted invoice with extracted metadata
type Invoice struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	Vendor        string    `json:"vendor"`
	Date          time.Time `json:"date"`
	Amount        int       `json:"amount"` // Amount in cents
	Currency      string    `json:"currency"`
	Status        Status    `json:"status"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	Fingerprint   string    `json:"fingerprint"`
	OwnerID       string    `json:"owner_id"`
	OwnerEmail    string    `json:"owner_email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// clone returns a copy so cached entities never alias mutated ones
func (i *Invoice) clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Snapshot types for optimistic mutations. One type per operation kind, so
// rollback handlers can switch exhaustively on the concrete type.

// StatusSnapshot captures the status before a status mutation
type StatusSnapshot struct {
	Status Status
}

func (StatusSnapshot) SnapshotKind() optimistic.OperationKind {
	return optimistic.KindStatusUpdate
}

// DeleteSnapshot captures the whole entity before a delete
type DeleteSnapshot struct {
	Invoice *Invoice
}

func (DeleteSnapshot) SnapshotKind() optimistic.OperationKind {
	return optimistic.KindDelete
}

// UpdateSnapshot captures the whole entity before a field update
type UpdateSnapshot struct {
	Invoice *Invoice
}

func (UpdateSnapshot) SnapshotKind() optimistic.OperationKind {
	return optimistic.KindUpdate
}
