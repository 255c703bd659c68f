package ocr

import (
	"context"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

// Engine names accepted on the command line
const (
	EngineTesseract = "tesseract"
	EngineEasyOCR   = "easyocr"
	EngineKerasOCR  = "kerasocr"
	EngineGemini    = "gemini"
	EngineOllama    = "ollama"
)

// Engine defines the interface for turning a scanned page into raw OCR output
type Engine interface {
	// Name identifies the engine in stored records
	Name() string
	// Extract recognizes the text of a page image or PDF
	Extract(ctx context.Context, data []byte, contentType string) (*extraction.RawDocument, error)
	// Close releases the engine's resources
	Close() error
}
