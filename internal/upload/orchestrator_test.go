package upload

import (
	"context"
	"errors"
	"fmt"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-pipeline/internal/dedup"
)

var _ = g.Describe("Orchestrator", func() {
	var (
		source       *mockSource
		hasher       *mockHasher
		classifier   *mockClassifier
		store        *mockStore
		extractor    *mockExtractor
		persister    *mockPersister
		reporter     *recordingReporter
		deps         Deps
		orchestrator *Orchestrator
		ctx          context.Context
		files        []string
		results      []Result
		summary      Summary
	)

	g.BeforeEach(func() {
		source = newMockSource()
		hasher = &mockHasher{}
		classifier = newMockClassifier()
		store = newMockStore()
		extractor = newMockExtractor()
		persister = newMockPersister()
		reporter = &recordingReporter{}
		deps = Deps{
			Source:     source,
			Hasher:     hasher,
			Classifier: classifier,
			Store:      store,
			Extractor:  extractor,
			Persister:  persister,
		}
		ctx = context.Background()
		orchestrator = NewOrchestrator(deps, reporter, WithConcurrency(3), WithWindowPause(0))
	})

	g.JustBeforeEach(func() {
		results, summary = orchestrator.Run(ctx, "user-1", files)
	})

	g.Describe("a mixed batch", func() {
		g.BeforeEach(func() {
			files = []string{"/tmp/a.pdf", "/tmp/b.pdf", "/tmp/c.pdf", "/tmp/d.pdf"}
			source.files["/tmp/a.pdf"] = []byte("invoice a")
			source.files["/tmp/b.pdf"] = []byte("invoice b")
			source.files["/tmp/c.pdf"] = []byte("invoice c")
			source.errs["/tmp/d.pdf"] = errors.New("read failed")

			classifier.verdicts[dedup.Fingerprint([]byte("invoice b"))] = dedup.Verdict{
				Kind:       dedup.VerdictSameUser,
				ExistingID: "inv-b",
			}
		})

		g.It("should produce one terminal result per file", func() {
			Expect(results).To(HaveLen(4))
		})

		g.It("should account for every file in the summary", func() {
			Expect(summary.Total()).To(Equal(4))
		})

		g.It("should tally each bucket separately", func() {
			Expect(summary.Success).To(Equal(2))
			Expect(summary.Duplicate).To(Equal(1))
			Expect(summary.Failure).To(Equal(1))
			Expect(summary.Cancelled).To(BeZero())
		})

		g.It("should return results in submission order", func() {
			Expect(results[0].FilePath).To(Equal("/tmp/a.pdf"))
			Expect(results[3].FilePath).To(Equal("/tmp/d.pdf"))
		})

		g.It("should not let one failure abort sibling jobs", func() {
			Expect(results[0].Outcome).To(Equal(OutcomeSuccess))
			Expect(results[3].Outcome).To(Equal(OutcomeError))
		})

		g.It("should notify BatchDone exactly once with the summary", func() {
			Expect(reporter.summary).NotTo(BeNil())
			Expect(reporter.summary.Success).To(Equal(2))
			Expect(reporter.results).To(HaveLen(4))
		})
	})

	g.Describe("a batch where every file fails", func() {
		g.BeforeEach(func() {
			files = []string{"/tmp/a.pdf", "/tmp/b.pdf"}
			source.errs["/tmp/a.pdf"] = errors.New("read failed")
			source.errs["/tmp/b.pdf"] = errors.New("read failed")
		})

		g.It("still completes and returns a summary", func() {
			Expect(summary.Failure).To(Equal(2))
			Expect(summary.Total()).To(Equal(2))
		})
	})

	g.Describe("concurrency limiting", func() {
		g.BeforeEach(func() {
			files = nil
			for i := 0; i < 5; i++ {
				path := fmt.Sprintf("/tmp/f%d.pdf", i)
				files = append(files, path)
				source.files[path] = []byte(fmt.Sprintf("invoice %d", i))
			}
		})

		g.It("never runs more jobs than the limit simultaneously", func() {
			Expect(summary.Success).To(Equal(5))
			Expect(store.maxInFlight()).To(BeNumerically("<=", 3))
		})
	})

	g.Describe("cross user duplicate scenario", func() {
		g.BeforeEach(func() {
			files = []string{"/tmp/a.pdf", "/tmp/b.pdf", "/tmp/c.pdf"}
			source.files["/tmp/a.pdf"] = []byte("invoice a")
			source.files["/tmp/b.pdf"] = []byte("invoice b")
			source.files["/tmp/c.pdf"] = []byte("invoice c")

			classifier.verdicts[dedup.Fingerprint([]byte("invoice b"))] = dedup.Verdict{
				Kind: dedup.VerdictCrossUser,
				CrossUser: &dedup.CrossUserMatch{
					InvoiceNumber:     "INV-42",
					OriginalUserEmail: "other@example.com",
					SimilarityScore:   1.0,
				},
			}
		})

		g.It("should count the cross user file as a duplicate", func() {
			Expect(summary.Success).To(Equal(2))
			Expect(summary.Duplicate).To(Equal(1))
			Expect(summary.Failure).To(BeZero())
		})

		g.It("should flag the batch as containing a cross user duplicate", func() {
			Expect(summary.HasCrossUserDuplicate).To(BeTrue())
		})

		g.It("should attach the disclosure payload to b.pdf", func() {
			Expect(results[1].FilePath).To(Equal("/tmp/b.pdf"))
			Expect(results[1].CrossUser).NotTo(BeNil())
			Expect(results[1].CrossUser.InvoiceNumber).To(Equal("INV-42"))
		})
	})

	g.Describe("cancellation", func() {
		var cancel context.CancelFunc

		g.BeforeEach(func() {
			files = nil
			for i := 0; i < 5; i++ {
				path := fmt.Sprintf("/tmp/f%d.pdf", i)
				files = append(files, path)
				source.files[path] = []byte(fmt.Sprintf("invoice %d", i))
			}
			orchestrator = NewOrchestrator(deps, reporter, WithConcurrency(2), WithWindowPause(0))

			// Block uploads until the batch is cancelled, so exactly the
			// first window of two files ever starts
			store.block = make(chan struct{})
			store.started = make(chan string, 5)

			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer g.GinkgoRecover()
				<-store.started
				<-store.started
				cancel()
				close(store.block)
			}()
		})

		g.AfterEach(func() {
			cancel()
		})

		g.It("lets started files finish their in-flight upload stage", func() {
			Expect(store.callCount()).To(Equal(2))
			Expect(reporter.stagesFor("/tmp/f0.pdf")).To(ContainElement(StageUploading))
			Expect(reporter.stagesFor("/tmp/f1.pdf")).To(ContainElement(StageUploading))
		})

		g.It("stops started files from advancing past their current stage", func() {
			Expect(reporter.stagesFor("/tmp/f0.pdf")).NotTo(ContainElement(StageProcessing))
			Expect(reporter.stagesFor("/tmp/f1.pdf")).NotTo(ContainElement(StageProcessing))
		})

		g.It("never attempts files that had not started", func() {
			for _, path := range files[2:] {
				Expect(reporter.stagesFor(path)).NotTo(ContainElement(StageUploading))
			}
		})

		g.It("accounts for every file with no false successes or errors", func() {
			Expect(summary.Cancelled).To(Equal(5))
			Expect(summary.Success).To(BeZero())
			Expect(summary.Failure).To(BeZero())
			Expect(summary.Total()).To(Equal(5))
		})
	})
})
