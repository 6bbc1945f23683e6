package invoice

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zombor/invoice-pipeline/internal/upload"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Owner-ID, X-Owner-Email")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// ownerFrom reads the uploading account from request headers
func ownerFrom(r *http.Request) Owner {
	return Owner{
		ID:    r.Header.Get("X-Owner-ID"),
		Email: r.Header.Get("X-Owner-Email"),
	}
}

// batchItem is the per-file entry in a batch upload response
type batchItem struct {
	upload.Result
	Retryable bool `json:"retryable"`
}

// handleListInvoices returns a list of all invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(invoices); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleBatchUpload accepts a multipart batch of invoice files, spools them
// to a temporary directory and drives them through the upload pipeline
func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	maxFormSize := int64(50 << 20) // 50MB
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "Batch is too large. Maximum size is 50MB. Please compress or resize your images."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	owner := ownerFrom(r)
	if owner.ID == "" {
		jsonError(w, "X-Owner-ID header is required", http.StatusBadRequest)
		return
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["files"]
	}
	if len(files) == 0 {
		jsonError(w, "No files were provided. Attach one or more files under the \"files\" field.", http.StatusBadRequest)
		return
	}

	// Spool uploads to disk; the pipeline reads files by path
	tmpDir, err := os.MkdirTemp("", "invoice-batch-")
	if err != nil {
		slog.Error("Error creating spool directory", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(tmpDir)

	paths := make([]string, 0, len(files))
	for i, header := range files {
		path, err := spoolUpload(tmpDir, i, header)
		if err != nil {
			slog.Error("Error spooling upload", "filename", header.Filename, "error", err)
			jsonError(w, "Error reading uploaded files. Please try again.", http.StatusInternalServerError)
			return
		}
		paths = append(paths, path)
	}

	results, summary, err := s.service.BatchUpload(r.Context(), owner, paths)
	if err != nil {
		slog.Error("Error running batch upload", "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]batchItem, 0, len(results))
	for _, result := range results {
		items = append(items, batchItem{Result: result, Retryable: result.Retryable()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	response := map[string]interface{}{
		"summary": summary,
		"results": items,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// spoolUpload copies one multipart part into dir. Each part gets its own
// subdirectory so duplicate filenames within a batch never collide.
func spoolUpload(dir string, index int, header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	partDir := filepath.Join(dir, strconv.Itoa(index))
	if err := os.MkdirAll(partDir, 0750); err != nil {
		return "", err
	}

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path := filepath.Join(partDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return path, nil
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Invoice ID required", http.StatusBadRequest)
		return
	}
	invoice, err := s.service.GetInvoice(id)
	if err != nil {
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(invoice); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetInvoiceFile returns the file for an invoice
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Invoice ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetInvoiceFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUpdateStatus optimistically changes an invoice's status. The change
// is acknowledged before the database write resolves, so 202 rather than 200.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Invoice ID required", http.StatusBadRequest)
		return
	}

	var req struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.UpdateStatus(r.Context(), id, req.Status); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleUpdateInvoice optimistically replaces an invoice's editable fields
func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Invoice ID required", http.StatusBadRequest)
		return
	}

	current, err := s.service.GetInvoice(id)
	if err != nil {
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}

	var req struct {
		InvoiceNumber *string `json:"invoice_number"`
		Vendor        *string `json:"vendor"`
		Amount        *int    `json:"amount"`
		Currency      *string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.InvoiceNumber != nil {
		current.InvoiceNumber = *req.InvoiceNumber
	}
	if req.Vendor != nil {
		current.Vendor = *req.Vendor
	}
	if req.Amount != nil {
		current.Amount = *req.Amount
	}
	if req.Currency != nil {
		current.Currency = *req.Currency
	}

	if err := s.service.UpdateInvoice(r.Context(), current); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleDeleteInvoice optimistically deletes an invoice
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Invoice ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteInvoice(r.Context(), id); err != nil {
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleBatchUpdateStatus optimistically changes the status of several invoices
func (s *Server) handleBatchUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceIDs []string `json:"invoice_ids"`
		Status     Status   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.BatchUpdateStatus(r.Context(), req.InvoiceIDs, req.Status); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

