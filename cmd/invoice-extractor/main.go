package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/ocr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type engineFlags struct {
	name        string
	tessBinary  string
	tessLang    string
	tessPSM     int
	tessdataDir string
	tessMinConf int
	pdfText     bool
	easyOCRCmd  string
	kerasCmd    string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-extractor")
	var (
		configPath  = fs.StringLong("config", "", "Extraction config YAML file (optional)")
		serve       = fs.BoolLong("serve", "Start the HTTP API instead of processing files")
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "invoice-extractor.db", "Database file path")
		storagePath = fs.StringLong("storage", "./invoices", "Storage directory path")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion = fs.BoolLong("version", "Show version information")

		ef engineFlags
	)
	fs.StringVar(&ef.name, 0, "engine", ocr.EngineTesseract, "OCR engine: tesseract, easyocr, kerasocr, gemini or ollama")
	fs.StringVar(&ef.tessBinary, 0, "tesseract-bin", "tesseract", "Tesseract binary")
	fs.StringVar(&ef.tessLang, 0, "tesseract-lang", "eng", "Tesseract languages (e.g. eng+msa)")
	fs.IntVar(&ef.tessPSM, 0, "tesseract-psm", 6, "Tesseract page segmentation mode")
	fs.StringVar(&ef.tessdataDir, 0, "tessdata-dir", "", "Tesseract tessdata directory (optional)")
	fs.IntVar(&ef.tessMinConf, 0, "tesseract-min-conf", 0, "Drop tesseract words below this confidence (0-100)")
	fs.BoolVar(&ef.pdfText, 0, "pdf-text", "Read the text layer of digital PDFs before running OCR")
	fs.StringVar(&ef.easyOCRCmd, 0, "easyocr-cmd", "", "EasyOCR helper command line, e.g. 'python3 easyocr_helper.py'")
	fs.StringVar(&ef.kerasCmd, 0, "keras-cmd", "", "keras-ocr helper command line")
	fs.StringVar(&ef.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&ef.geminiModel, 0, "gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	fs.StringVar(&ef.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&ef.ollamaModel, 0, "ollama-model", "llava", "Ollama model name")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_EXTRACTOR"),
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	// Logs go to stderr so batch output on stdout stays valid JSON
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := extraction.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = extraction.LoadConfig(*configPath)
		if err != nil {
			slog.Error("Failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	extractor, err := extraction.New(cfg, extraction.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("Failed to initialize extractor", "error", err)
		os.Exit(1)
	}

	if *serve {
		engine, err := newEngine(ef)
		if err != nil {
			slog.Error("Failed to initialize OCR engine", "engine", ef.name, "error", err)
			os.Exit(1)
		}
		defer engine.Close()

		runServer(engine, extractor, fmt.Sprintf(":%d", *port), *dbPath, *storagePath, invoice.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		})
		return
	}

	paths := fs.GetArgs()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: no input files (or use --serve)\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Text and JSON inputs never need OCR credentials
	var engine ocr.Engine
	if needsEngine(paths) {
		slog.Info("Initializing OCR engine...", "engine", ef.name)
		engine, err = newEngine(ef)
		if err != nil {
			slog.Error("Failed to initialize OCR engine", "engine", ef.name, "error", err)
			os.Exit(1)
		}
		defer engine.Close()
	}
	getEngine := func() (ocr.Engine, error) {
		if engine == nil {
			return nil, errors.New("no OCR engine configured")
		}
		return engine, nil
	}

	failed, err := runBatch(ctx, extractor, getEngine, paths, os.Stdout)
	if err != nil {
		slog.Error("Batch aborted", "error", err)
		stop()
		os.Exit(1)
	}
	if failed > 0 {
		slog.Warn("Some files failed", "failed", failed, "total", len(paths))
		os.Exit(1)
	}
}

// newEngine builds the OCR engine selected on the command line
func newEngine(ef engineFlags) (ocr.Engine, error) {
	engine, err := baseEngine(ef)
	if err != nil {
		return nil, err
	}
	if ef.pdfText {
		return ocr.NewTextLayer(engine), nil
	}
	return engine, nil
}

func baseEngine(ef engineFlags) (ocr.Engine, error) {
	switch ef.name {
	case ocr.EngineTesseract:
		return ocr.NewTesseract(ocr.TesseractOptions{
			Binary:        ef.tessBinary,
			Lang:          ef.tessLang,
			PSM:           ef.tessPSM,
			TessdataDir:   ef.tessdataDir,
			MinConfidence: float64(ef.tessMinConf),
		}), nil
	case ocr.EngineEasyOCR:
		return ocr.NewEasyOCR(scriptOptions(ef.easyOCRCmd)), nil
	case ocr.EngineKerasOCR:
		return ocr.NewKerasOCR(scriptOptions(ef.kerasCmd)), nil
	case ocr.EngineGemini:
		// Get Gemini API key from flag or environment
		apiKey := ef.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		return ocr.NewGemini(apiKey, ef.geminiModel)
	case ocr.EngineOllama:
		return ocr.NewOllama(ef.ollamaURL, ef.ollamaModel), nil
	}
	return nil, fmt.Errorf("unknown engine %q", ef.name)
}

// scriptOptions splits a helper command line on whitespace
func scriptOptions(cmdline string) ocr.ScriptOptions {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return ocr.ScriptOptions{}
	}
	return ocr.ScriptOptions{Command: parts[0], Args: parts[1:]}
}

func runServer(engine ocr.Engine, extractor *extraction.Extractor, addr, dbPath, storagePath string, basicAuth invoice.BasicAuth) {
	// Initialize database
	slog.Info("Initializing database...")
	db, err := invoice.NewBoltDB(dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := invoice.NewLocalStorage(storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := invoice.NewService(db, engine, extractor, store)
	server := invoice.NewServer(service, basicAuth)

	// Start server in goroutine
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "engine", engine.Name())
	if basicAuth.Username != "" || basicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", basicAuth.Username)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
