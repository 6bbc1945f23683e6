package scanning

// InvoiceData contains structured fields extracted from an invoice document
type InvoiceData struct {
	InvoiceNumber string  `json:"invoice_number"`
	Vendor        string  `json:"vendor"`
	Date          string  `json:"date"` // ISO 8601 format
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// Extractor defines the interface for invoice extraction operations
type Extractor interface {
	// ExtractInvoice analyzes an invoice image/PDF and extracts structured fields
	ExtractInvoice(imageData []byte, contentType string) (*InvoiceData, error)
	// Close closes the extractor and releases resources
	Close() error
}
