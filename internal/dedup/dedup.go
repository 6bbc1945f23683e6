// Package dedup provides content fingerprinting and duplicate classification
// for uploaded invoice files.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Fingerprint computes a stable content hash for a file. Identical bytes
// always produce the same fingerprint regardless of file name or metadata.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerdictKind identifies the outcome of a duplicate check
type VerdictKind int

const (
	// VerdictNone means no matching content is known
	VerdictNone VerdictKind = iota
	// VerdictSameUser means the owner already has an invoice with this content
	VerdictSameUser
	// VerdictCrossUser means a different account owns an invoice with this content
	VerdictCrossUser
)

// CrossUserMatch describes an existing invoice owned by a different account
// whose content matches the file being uploaded
type CrossUserMatch struct {
	InvoiceNumber     string    `json:"invoice_number"`
	OriginalUserEmail string    `json:"original_user_email"`
	UploadedAt        time.Time `json:"uploaded_at"`
	SimilarityScore   float64   `json:"similarity_score"`
	Recommendations   []string  `json:"recommendations"`
}

// Verdict is the result of classifying a fingerprint against known content
type Verdict struct {
	Kind VerdictKind

	// ExistingID is the invoice already owned by the uploader, set for VerdictSameUser
	ExistingID string

	// CrossUser carries disclosure details, set for VerdictCrossUser
	CrossUser *CrossUserMatch
}

// Classifier determines whether a fingerprint matches content that is
// already owned by the uploader or by another account
type Classifier interface {
	Classify(ctx context.Context, fingerprint, ownerID string) (Verdict, error)
}
