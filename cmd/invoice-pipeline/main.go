package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/invoice-pipeline/internal/dedup"
	"github.com/zombor/invoice-pipeline/internal/invoice"
	"github.com/zombor/invoice-pipeline/internal/optimistic"
	"github.com/zombor/invoice-pipeline/internal/scanning"
	"github.com/zombor/invoice-pipeline/internal/upload"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-pipeline")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "invoice-pipeline.db", "Database file path")
		indexPath       = fs.StringLong("index", "fingerprints.db", "Fingerprint index file path")
		storagePath     = fs.StringLong("storage", "./invoices", "Storage directory path")
		extractorType   = fs.StringLong("extractor", "gemini", "Extractor type: 'gemini' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		concurrency     = fs.IntLong("upload-concurrency", upload.DefaultConcurrency, "Parallel uploads per batch")
		windowPause     = fs.DurationLong("upload-window-pause", upload.DefaultWindowPause, "Pause between upload concurrency windows")
		mutationTimeout = fs.DurationLong("mutation-timeout", optimistic.DefaultTimeout, "Pending mutation timeout before forced rollback")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		batchDir        = fs.StringLong("batch", "", "Upload every file in this directory, print a summary and exit")
		batchOwner      = fs.StringLong("batch-owner", "cli", "Owner ID for --batch uploads")
		batchEmail      = fs.StringLong("batch-email", "", "Owner email for --batch uploads")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_PIPELINE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := invoice.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize fingerprint index
	index, err := dedup.NewIndex(*indexPath)
	if err != nil {
		slog.Error("Failed to initialize fingerprint index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	// Initialize extractor based on type
	var extractor scanning.Extractor
	switch *extractorType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := invoice.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize mutation coordinator
	coordinator := optimistic.NewCoordinator(
		optimistic.WithTimeout(*mutationTimeout),
	)
	defer coordinator.Close()

	// Initialize service
	opts := []invoice.ServiceOption{
		invoice.WithUploadConcurrency(*concurrency),
		invoice.WithUploadWindowPause(*windowPause),
	}
	if *batchDir != "" {
		opts = append(opts, invoice.WithReporter(newConsoleReporter()))
	}
	invoiceService, err := invoice.NewService(db, store, extractor, index, coordinator, opts...)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	// One-shot batch mode
	if *batchDir != "" {
		if err := runBatch(invoiceService, *batchDir, *batchOwner, *batchEmail); err != nil {
			slog.Error("Batch upload failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Initialize server
	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(invoiceService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// runBatch uploads every supported file in dir and prints the summary.
// Ctrl-C cancels the batch; files not yet started are left untouched.
func runBatch(service *invoice.Service, dir, ownerID, ownerEmail string) error {
	paths, err := collectFiles(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no invoice files found in %s", dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	owner := invoice.Owner{ID: ownerID, Email: ownerEmail}
	_, summary, err := service.BatchUpload(ctx, owner, paths)
	if err != nil {
		return err
	}

	slog.Info("Batch finished", "files", summary.Total(), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// collectFiles lists the uploadable files directly inside dir
func collectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading batch directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".pdf", ".heic", ".heif":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
