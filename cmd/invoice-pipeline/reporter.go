package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"

	"github.com/zombor/invoice-pipeline/internal/upload"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

// consoleReporter prints per-file progress and a colored batch summary
type consoleReporter struct {
	mu sync.Mutex
}

func newConsoleReporter() *consoleReporter {
	return &consoleReporter{}
}

func (r *consoleReporter) UploadProgress(p upload.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch p.Stage {
	case upload.StageSuccess:
		green.Printf("✓ %s\n", p.FileName)
	case upload.StageDuplicate:
		yellow.Printf("≡ %s  %s\n", p.FileName, p.Message)
	case upload.StageError:
		red.Printf("✗ %s  %s\n", p.FileName, p.Err)
	default:
		faint.Printf("  %s  %s\n", p.FileName, p.Stage)
	}
}

func (r *consoleReporter) BatchDone(summary upload.Summary, results []upload.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Println()
	green.Printf("%d uploaded", summary.Success)
	fmt.Print("  ")
	yellow.Printf("%d duplicate", summary.Duplicate)
	fmt.Print("  ")
	red.Printf("%d failed", summary.Failure)
	if summary.Cancelled > 0 {
		fmt.Print("  ")
		faint.Printf("%d cancelled", summary.Cancelled)
	}
	fmt.Println()

	if summary.HasCrossUserDuplicate {
		for _, result := range results {
			if result.CrossUser == nil {
				continue
			}
			yellow.Printf("\n%s was already uploaded by %s (invoice %s)\n",
				result.FileName, result.CrossUser.OriginalUserEmail, result.CrossUser.InvoiceNumber)
			for _, rec := range result.CrossUser.Recommendations {
				faint.Printf("  - %s\n", rec)
			}
		}
	}

	if retryable := upload.RetryablePaths(results); len(retryable) > 0 {
		fmt.Println()
		faint.Printf("%d file(s) can be retried\n", len(retryable))
	}
}
