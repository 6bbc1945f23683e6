package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const fingerprintBucketName = "fingerprints"

// Entry records which account first uploaded a given piece of content
type Entry struct {
	OwnerID       string    `json:"owner_id"`
	OwnerEmail    string    `json:"owner_email"`
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// Index is a bbolt-backed fingerprint index. It implements Classifier and is
// updated after each successful persist so a duplicate never creates a
// second entity.
type Index struct {
	db *bbolt.DB
}

// NewIndex opens (or creates) a fingerprint index at the given path
func NewIndex(path string) (*Index, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening fingerprint index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(fingerprintBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating fingerprint bucket: %w", err)
	}

	return &Index{db: db}, nil
}

// Classify looks up a fingerprint and reports whether the content is already
// owned by the uploader, owned by another account, or unknown.
func (i *Index) Classify(ctx context.Context, fingerprint, ownerID string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	var entry *Entry
	err := i.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fingerprintBucketName))
		data := bucket.Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("looking up fingerprint: %w", err)
	}

	if entry == nil {
		return Verdict{Kind: VerdictNone}, nil
	}

	if entry.OwnerID == ownerID {
		return Verdict{Kind: VerdictSameUser, ExistingID: entry.InvoiceID}, nil
	}

	return Verdict{
		Kind: VerdictCrossUser,
		CrossUser: &CrossUserMatch{
			InvoiceNumber:     entry.InvoiceNumber,
			OriginalUserEmail: entry.OwnerEmail,
			UploadedAt:        entry.UploadedAt,
			// Exact content match, so similarity is always 1.0 here
			SimilarityScore: 1.0,
			Recommendations: []string{
				"This document was already uploaded by another account.",
				"If you believe this is your invoice, contact the original uploader.",
				"Upload a different document or request a copy from the vendor.",
			},
		},
	}, nil
}

// Record registers a fingerprint for a newly persisted invoice. Recording
// the same fingerprint again overwrites the entry, which keeps the index
// idempotent with respect to retries.
func (i *Index) Record(ctx context.Context, fingerprint string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return i.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fingerprintBucketName))
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling fingerprint entry: %w", err)
		}
		return bucket.Put([]byte(fingerprint), data)
	})
}

// Close closes the underlying database
func (i *Index) Close() error {
	return i.db.Close()
}
