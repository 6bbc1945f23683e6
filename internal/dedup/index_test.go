package dedup

import (
	"context"
	"path/filepath"
	"time"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = g.Describe("Index", func() {
	var (
		tmpDir string
		index  *Index
		ctx    context.Context
	)

	g.BeforeEach(func() {
		tmpDir = g.GinkgoT().TempDir()
		var err error
		index, err = NewIndex(filepath.Join(tmpDir, "index.db"))
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	g.AfterEach(func() {
		if index != nil {
			index.Close()
		}
	})

	g.Describe("Classify", func() {
		var (
			fingerprint string
			ownerID     string
			verdict     Verdict
			err         error
		)

		g.BeforeEach(func() {
			fingerprint = Fingerprint([]byte("invoice bytes"))
			ownerID = "user-1"
		})

		g.JustBeforeEach(func() {
			verdict, err = index.Classify(ctx, fingerprint, ownerID)
		})

		g.When("the fingerprint is unknown", func() {
			g.It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			g.It("should return no duplicate", func() {
				Expect(verdict.Kind).To(Equal(VerdictNone))
			})
		})

		g.When("the same user already owns the content", func() {
			g.BeforeEach(func() {
				Expect(index.Record(ctx, fingerprint, Entry{
					OwnerID:    "user-1",
					OwnerEmail: "user-1@example.com",
					InvoiceID:  "inv-1",
					UploadedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				})).NotTo(HaveOccurred())
			})

			g.It("should return a same user verdict", func() {
				Expect(verdict.Kind).To(Equal(VerdictSameUser))
			})

			g.It("should reference the existing invoice", func() {
				Expect(verdict.ExistingID).To(Equal("inv-1"))
			})

			g.It("should not carry cross user details", func() {
				Expect(verdict.CrossUser).To(BeNil())
			})
		})

		g.When("another user owns the content", func() {
			g.BeforeEach(func() {
				Expect(index.Record(ctx, fingerprint, Entry{
					OwnerID:       "user-2",
					OwnerEmail:    "user-2@example.com",
					InvoiceID:     "inv-2",
					InvoiceNumber: "INV-2024-042",
					UploadedAt:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				})).NotTo(HaveOccurred())
			})

			g.It("should return a cross user verdict", func() {
				Expect(verdict.Kind).To(Equal(VerdictCrossUser))
			})

			g.It("should disclose the original uploader", func() {
				Expect(verdict.CrossUser).NotTo(BeNil())
				Expect(verdict.CrossUser.OriginalUserEmail).To(Equal("user-2@example.com"))
				Expect(verdict.CrossUser.InvoiceNumber).To(Equal("INV-2024-042"))
			})

			g.It("should report an exact content match", func() {
				Expect(verdict.CrossUser.SimilarityScore).To(Equal(1.0))
			})

			g.It("should include recommendations", func() {
				Expect(verdict.CrossUser.Recommendations).NotTo(BeEmpty())
			})
		})

		g.When("the context is cancelled", func() {
			g.BeforeEach(func() {
				cancelled, cancel := context.WithCancel(context.Background())
				cancel()
				ctx = cancelled
			})

			g.It("returns the context error", func() {
				Expect(err).To(MatchError(context.Canceled))
			})
		})
	})

	g.Describe("Record", func() {
		g.It("is idempotent for the same fingerprint", func() {
			fingerprint := Fingerprint([]byte("bytes"))
			entry := Entry{OwnerID: "user-1", InvoiceID: "inv-1"}
			Expect(index.Record(ctx, fingerprint, entry)).NotTo(HaveOccurred())
			Expect(index.Record(ctx, fingerprint, entry)).NotTo(HaveOccurred())

			verdict, err := index.Classify(ctx, fingerprint, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(verdict.ExistingID).To(Equal("inv-1"))
		})
	})
})
