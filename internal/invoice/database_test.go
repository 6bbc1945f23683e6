package invoice

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveInvoice", func() {
		var (
			invoice *Invoice
			err     error
		)

		BeforeEach(func() {
			invoice = &Invoice{
				ID:            "test-id",
				InvoiceNumber: "INV-001",
				Vendor:        "Acme Supplies",
				Date:          time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
				Amount:        2599,
				Currency:      "USD",
				Status:        StatusPending,
				Filename:      "test.jpg",
				ContentType:   "image/jpeg",
				OwnerID:       "user-1",
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveInvoice(invoice)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the invoice to the database", func() {
				saved, getErr := db.GetInvoice("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id"))
			})
		})
	})

	Describe("GetInvoice", func() {
		var (
			invoiceID string
			invoice   *Invoice
			err       error
		)

		JustBeforeEach(func() {
			invoice, err = db.GetInvoice(invoiceID)
		})

		When("invoice exists", func() {
			BeforeEach(func() {
				invoiceID = "test-id"
				testInvoice := &Invoice{
					ID:            "test-id",
					InvoiceNumber: "INV-001",
					Vendor:        "Acme Supplies",
					Date:          time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
					Amount:        2599,
					Currency:      "USD",
					Status:        StatusPending,
					Filename:      "test.jpg",
					ContentType:   "image/jpeg",
					OwnerID:       "user-1",
					CreatedAt:     time.Now(),
					UpdatedAt:     time.Now(),
				}
				Expect(db.SaveInvoice(testInvoice)).NotTo(HaveOccurred())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the correct invoice ID", func() {
				Expect(invoice.ID).To(Equal("test-id"))
			})

			It("should return the correct vendor", func() {
				Expect(invoice.Vendor).To(Equal("Acme Supplies"))
			})

			It("should return the correct amount", func() {
				Expect(invoice.Amount).To(Equal(2599))
			})
		})

		When("invoice does not exist", func() {
			var expectedErr error

			BeforeEach(func() {
				invoiceID = "nonexistent"
				expectedErr = errors.New("invoice not found: nonexistent")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(expectedErr))
			})
		})
	})

	Describe("ListInvoices", func() {
		var (
			invoices []*Invoice
			err      error
		)

		JustBeforeEach(func() {
			invoices, err = db.ListInvoices()
		})

		When("invoices exist", func() {
			BeforeEach(func() {
				invoice1 := &Invoice{
					ID:        "id1",
					Vendor:    "Vendor 1",
					OwnerID:   "user-1",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}
				invoice2 := &Invoice{
					ID:        "id2",
					Vendor:    "Vendor 2",
					OwnerID:   "user-2",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}
				Expect(db.SaveInvoice(invoice1)).NotTo(HaveOccurred())
				Expect(db.SaveInvoice(invoice2)).NotTo(HaveOccurred())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return all invoices", func() {
				Expect(invoices).To(HaveLen(2))
			})
		})

		When("no invoices exist", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an empty list", func() {
				Expect(invoices).To(BeEmpty())
			})
		})
	})

	Describe("ListInvoicesByOwner", func() {
		var (
			ownerID  string
			invoices []*Invoice
			err      error
		)

		BeforeEach(func() {
			for _, inv := range []*Invoice{
				{ID: "id1", Vendor: "Vendor 1", OwnerID: "user-1"},
				{ID: "id2", Vendor: "Vendor 2", OwnerID: "user-2"},
				{ID: "id3", Vendor: "Vendor 3", OwnerID: "user-1"},
			} {
				Expect(db.SaveInvoice(inv)).NotTo(HaveOccurred())
			}
		})

		JustBeforeEach(func() {
			invoices, err = db.ListInvoicesByOwner(ownerID)
		})

		When("the owner has invoices", func() {
			BeforeEach(func() {
				ownerID = "user-1"
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return only that owner's invoices", func() {
				Expect(invoices).To(HaveLen(2))
				for _, inv := range invoices {
					Expect(inv.OwnerID).To(Equal("user-1"))
				}
			})
		})

		When("the owner has no invoices", func() {
			BeforeEach(func() {
				ownerID = "user-3"
			})

			It("should return an empty list", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(invoices).To(BeEmpty())
			})
		})
	})

	Describe("DeleteInvoice", func() {
		var (
			invoiceID string
			err       error
		)

		JustBeforeEach(func() {
			err = db.DeleteInvoice(invoiceID)
		})

		When("invoice exists", func() {
			BeforeEach(func() {
				invoiceID = "test-id"
				invoice := &Invoice{
					ID:        "test-id",
					Vendor:    "Acme Supplies",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}
				Expect(db.SaveInvoice(invoice)).NotTo(HaveOccurred())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should remove the invoice from the database", func() {
				_, getErr := db.GetInvoice("test-id")
				Expect(getErr).To(HaveOccurred())
			})
		})

		When("invoice does not exist", func() {
			BeforeEach(func() {
				invoiceID = "nonexistent"
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			err := db.Close()
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
