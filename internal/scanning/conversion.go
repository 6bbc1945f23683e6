package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// invoiceExtractPrompt is the shared prompt used by all LLM providers for extracting invoice fields
const invoiceExtractPrompt = `You are analyzing an invoice or billing document. Carefully read all text in the image and extract the following information:

1. **Invoice Number**: The invoice, bill, or reference number, usually labeled "Invoice #", "Invoice No", "Bill Number" or similar.

2. **Vendor**: The issuing business or supplier name, usually the largest text or letterhead at the top of the document.

3. **Date**: The invoice or issue date. Convert it to ISO 8601 format (YYYY-MM-DD). Common formats: MM/DD/YYYY, DD/MM/YYYY, or written dates.

4. **Total Amount**: The final amount due or grand total, usually at the bottom, labeled "TOTAL", "Amount Due", "Balance Due" or similar. Extract only the numeric value.

5. **Currency**: The three-letter currency code if determinable from symbols or labels (e.g. USD, EUR, GBP). Default to "USD" if unclear.

Return ONLY valid JSON in this exact format:
{
  "invoice_number": "INV-0000",
  "vendor": "Vendor Name",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "currency": "USD"
}

Important:
- The date must be in YYYY-MM-DD format
- The amount must be a number (not a string)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// renderPDF rasterizes the first page of a PDF to PNG. Invoices are almost
// always single page; later pages are ignored.
func renderPDF(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeImage decodes JPEG, PNG, GIF or HEIC/HEIF bytes and re-encodes as PNG
func decodeImage(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEIC(imageData, mimeType) {
		// Go's standard image package has no HEIC support, use the pure Go decoder
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC reports whether the data or MIME type indicates HEIC/HEIF
// (the common iPhone photo format)
func isHEIC(data []byte, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	// HEIC containers carry an ftyp box at offset 4 with a HEIC-related brand
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heif", "mif1", "msf1":
			return true
		}
	}
	return false
}

// normalizeToPNG converts PDFs and non-PNG images to PNG so every provider
// receives one well-supported format. Returns the PNG bytes.
func normalizeToPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	switch {
	case mimeType == "application/pdf":
		pngData, err := renderPDF(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, nil
	case mimeType != "image/png" || isHEIC(data, mimeType):
		pngData, err := decodeImage(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, nil
	}
	return data, nil
}
