package upload

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// ErrorCategory is the user-facing classification of a failed file. The raw
// error is never shown to the user directly; each category maps to a fixed
// display message.
type ErrorCategory string

const (
	CategoryNetwork           ErrorCategory = "network"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryFileTooLarge      ErrorCategory = "file_too_large"
	CategoryUnsupportedFormat ErrorCategory = "unsupported_format"
	CategoryServerError       ErrorCategory = "server_error"
	CategoryPermissionDenied  ErrorCategory = "permission_denied"
	CategoryDuplicate         ErrorCategory = "duplicate"
	CategoryExtractionFailure ErrorCategory = "extraction_failure"
	CategoryUnknown           ErrorCategory = "unknown"
)

// Sentinel errors collaborators can wrap to force a category without
// relying on string matching.
var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrPermissionDenied  = errors.New("permission denied")
)

// Categorize maps a raw error to its user-facing category. Unmatched errors
// fall back to CategoryUnknown rather than leaking internals.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, ErrFileTooLarge):
		return CategoryFileTooLarge
	case errors.Is(err, ErrUnsupportedFormat):
		return CategoryUnsupportedFormat
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, os.ErrPermission):
		return CategoryPermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, context.Canceled):
		return CategoryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	// Remote services surface plain error strings; match on the common ones
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return CategoryNetwork
	case strings.Contains(msg, "too large"), strings.Contains(msg, "size limit"):
		return CategoryFileTooLarge
	case strings.Contains(msg, "unsupported"), strings.Contains(msg, "unknown format"), strings.Contains(msg, "invalid format"):
		return CategoryUnsupportedFormat
	case strings.Contains(msg, "permission"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"):
		return CategoryPermissionDenied
	case strings.Contains(msg, "extract"), strings.Contains(msg, "parsing invoice"), strings.Contains(msg, "no response from"):
		return CategoryExtractionFailure
	case strings.Contains(msg, "status 5"), strings.Contains(msg, "internal server"), strings.Contains(msg, "server error"):
		return CategoryServerError
	}

	return CategoryUnknown
}

// Message returns the display string shown to the user for this category
func (c ErrorCategory) Message() string {
	switch c {
	case CategoryNetwork:
		return "Network problem during upload. Check your connection and retry."
	case CategoryTimeout:
		return "The upload timed out. Please retry."
	case CategoryFileTooLarge:
		return "This file is too large to upload. Compress or resize it and try again."
	case CategoryUnsupportedFormat:
		return "This file format is not supported. Use JPEG, PNG, GIF, HEIC or PDF."
	case CategoryServerError:
		return "The server had a problem processing this file. Please retry."
	case CategoryPermissionDenied:
		return "You do not have permission to upload this file."
	case CategoryDuplicate:
		return "This document was already uploaded."
	case CategoryExtractionFailure:
		return "Could not read invoice details from this document."
	}
	return "Something went wrong with this file. Please retry."
}

// Retryable reports whether retrying can plausibly change the outcome.
// Duplicates and format/size rejections are terminal; retrying them is
// never offered.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryServerError, CategoryUnknown:
		return true
	}
	return false
}
