package upload

import (
	"context"
	"errors"
	"fmt"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = g.Describe("Categorize", func() {
	g.DescribeTable("maps raw errors to user-facing categories",
		func(err error, expected ErrorCategory) {
			Expect(Categorize(err)).To(Equal(expected))
		},
		g.Entry("sentinel file too large", fmt.Errorf("uploading: %w", ErrFileTooLarge), CategoryFileTooLarge),
		g.Entry("sentinel unsupported format", ErrUnsupportedFormat, CategoryUnsupportedFormat),
		g.Entry("sentinel permission denied", ErrPermissionDenied, CategoryPermissionDenied),
		g.Entry("context deadline", context.DeadlineExceeded, CategoryTimeout),
		g.Entry("timeout in message", errors.New("request timeout after 30s"), CategoryTimeout),
		g.Entry("connection refused", errors.New("dial tcp: connection refused"), CategoryNetwork),
		g.Entry("size limit in message", errors.New("body exceeds size limit"), CategoryFileTooLarge),
		g.Entry("unknown image format", errors.New("image: unknown format"), CategoryUnsupportedFormat),
		g.Entry("unauthorized", errors.New("401 unauthorized"), CategoryPermissionDenied),
		g.Entry("extraction", errors.New("extracting invoice: no candidates"), CategoryExtractionFailure),
		g.Entry("http 500", errors.New("unexpected response (status 500)"), CategoryServerError),
		g.Entry("anything else", errors.New("wat"), CategoryUnknown),
	)

	g.It("falls back to a generic retry message for unknown errors", func() {
		Expect(CategoryUnknown.Message()).To(ContainSubstring("retry"))
	})

	g.It("never offers retry for duplicates", func() {
		Expect(CategoryDuplicate.Retryable()).To(BeFalse())
	})

	g.It("offers retry for transient failure classes", func() {
		Expect(CategoryNetwork.Retryable()).To(BeTrue())
		Expect(CategoryTimeout.Retryable()).To(BeTrue())
		Expect(CategoryServerError.Retryable()).To(BeTrue())
	})

	g.It("does not offer retry for terminal failure classes", func() {
		Expect(CategoryFileTooLarge.Retryable()).To(BeFalse())
		Expect(CategoryUnsupportedFormat.Retryable()).To(BeFalse())
	})
})

var _ = g.Describe("RetryablePaths", func() {
	g.It("re-queues only retryable failures", func() {
		results := []Result{
			{FilePath: "/tmp/ok.pdf", Outcome: OutcomeSuccess},
			{FilePath: "/tmp/dup.pdf", Outcome: OutcomeDuplicate, Category: CategoryDuplicate},
			{FilePath: "/tmp/net.pdf", Outcome: OutcomeError, Category: CategoryNetwork},
			{FilePath: "/tmp/big.pdf", Outcome: OutcomeError, Category: CategoryFileTooLarge},
			{FilePath: "/tmp/late.pdf", Outcome: OutcomeCancelled},
		}
		Expect(RetryablePaths(results)).To(Equal([]string{"/tmp/net.pdf", "/tmp/late.pdf"}))
	})
})
