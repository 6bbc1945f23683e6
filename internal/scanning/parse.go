package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseInvoiceJSON parses the JSON response from an LLM provider
func parseInvoiceJSON(text string) (*InvoiceData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the JSON in prose, extract the first object
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data InvoiceData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(data.Date)

	data.Vendor = strings.TrimSpace(data.Vendor)
	if data.Vendor == "" {
		data.Vendor = "Unknown Vendor"
	}

	data.InvoiceNumber = strings.TrimSpace(data.InvoiceNumber)

	data.Currency = strings.ToUpper(strings.TrimSpace(data.Currency))
	if len(data.Currency) != 3 {
		data.Currency = "USD"
	}

	// Amount stays float64 here; the service layer converts to int cents

	return &data, nil
}

// normalizeDate coerces the extracted date into YYYY-MM-DD, falling back to
// today when the model returned something unparseable
func normalizeDate(date string) string {
	if date == "" {
		return time.Now().Format("2006-01-02")
	}
	if d, err := time.Parse("2006-01-02", date); err == nil {
		return d.Format("2006-01-02")
	}
	for _, format := range []string{"2006/01/02", "01/02/2006", "02-01-2006"} {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}
