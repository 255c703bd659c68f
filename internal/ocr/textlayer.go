package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

// minTextLayer is the number of letters and digits a PDF text layer needs
// before it is trusted over OCR
const minTextLayer = 20

// TextLayer reads the embedded text of digital PDFs and hands everything
// else, including scanned PDFs, to the wrapped engine
type TextLayer struct {
	fallback Engine
}

// NewTextLayer wraps an OCR engine
func NewTextLayer(fallback Engine) *TextLayer {
	return &TextLayer{fallback: fallback}
}

// Extract returns the text layer of a PDF when it has one
func (t *TextLayer) Extract(ctx context.Context, data []byte, contentType string) (*extraction.RawDocument, error) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		text, err := pdfText(data)
		switch {
		case err != nil:
			slog.Debug("Failed to read PDF text layer", "error", err)
		case hasEnoughText(text):
			return &extraction.RawDocument{FullText: text}, nil
		}
	}
	return t.fallback.Extract(ctx, data, contentType)
}

// Name reports both readers
func (t *TextLayer) Name() string {
	return "pdftext+" + t.fallback.Name()
}

// Close closes the wrapped engine
func (t *TextLayer) Close() error {
	return t.fallback.Close()
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

func hasEnoughText(s string) bool {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
			if n >= minTextLayer {
				return true
			}
		}
	}
	return false
}
