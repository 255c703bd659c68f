package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

// ScriptOptions configures a helper command wrapping a Python OCR library.
// The command receives the PNG path as its last argument and prints a JSON
// array of {"text", "confidence", "box": [[x, y], ...]} blocks.
type ScriptOptions struct {
	Command string
	Args    []string
}

// ScriptEngine implements the Engine interface on top of a helper command.
// Loading the OCR model is the helper's job, once per process it starts.
type ScriptEngine struct {
	name   string
	runner Runner
	opts   ScriptOptions
	// scale converts reported confidences to 0-100; 0 means the library
	// reports none
	scale float64
}

// NewEasyOCR creates an engine for an EasyOCR helper, which reports
// confidences in 0-1
func NewEasyOCR(opts ScriptOptions) *ScriptEngine {
	return newScriptEngine(EngineEasyOCR, opts, 100, execRunner{})
}

// NewKerasOCR creates an engine for a keras-ocr helper. keras-ocr reports no
// recognition confidence.
func NewKerasOCR(opts ScriptOptions) *ScriptEngine {
	return newScriptEngine(EngineKerasOCR, opts, 0, execRunner{})
}

func newScriptEngine(name string, opts ScriptOptions, scale float64, runner Runner) *ScriptEngine {
	return &ScriptEngine{name: name, runner: runner, opts: opts, scale: scale}
}

type scriptBlock struct {
	Text       string      `json:"text"`
	Confidence *float64    `json:"confidence"`
	Box        [][]float64 `json:"box"`
}

// Extract runs the helper on the page
func (s *ScriptEngine) Extract(ctx context.Context, data []byte, contentType string) (*extraction.RawDocument, error) {
	if s.opts.Command == "" {
		return nil, fmt.Errorf("%s helper command is not configured", s.name)
	}
	page, err := preparePage(data, contentType)
	if err != nil {
		return nil, err
	}
	path, cleanup, err := writeTemp(page)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := append(append([]string{}, s.opts.Args...), path)
	out, errb, err := s.runner.Run(ctx, s.opts.Command, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return nil, fmt.Errorf("running %s helper: %w: %s", s.name, err, msg)
		}
		return nil, fmt.Errorf("running %s helper: %w", s.name, err)
	}

	var blocks []scriptBlock
	if err := json.Unmarshal(out, &blocks); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", s.name, err)
	}
	return s.document(blocks), nil
}

func (s *ScriptEngine) document(blocks []scriptBlock) *extraction.RawDocument {
	doc := &extraction.RawDocument{}
	geometry := false
	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		tok := extraction.Token{Text: text, Confidence: -1, Box: polygonBox(b.Box)}
		if s.scale > 0 && b.Confidence != nil {
			tok.Confidence = math.Max(0, math.Min(100, *b.Confidence*s.scale))
		}
		if tok.Box.Height > 0 {
			geometry = true
		}
		doc.Tokens = append(doc.Tokens, tok)
	}

	if geometry {
		doc.FullText = strings.Join(extraction.LinesFromTokens(doc.Tokens), "\n")
		return doc
	}
	texts := make([]string, len(doc.Tokens))
	for i, t := range doc.Tokens {
		texts[i] = t.Text
	}
	doc.FullText = strings.Join(texts, "\n")
	return doc
}

// polygonBox returns the axis-aligned box around a detection polygon
func polygonBox(points [][]float64) extraction.BoundingBox {
	if len(points) == 0 {
		return extraction.BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		if len(p) < 2 {
			continue
		}
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}
	if math.IsInf(minX, 1) {
		return extraction.BoundingBox{}
	}
	return extraction.BoundingBox{
		X:      int(math.Round(minX)),
		Y:      int(math.Round(minY)),
		Width:  int(math.Round(maxX - minX)),
		Height: int(math.Round(maxY - minY)),
	}
}

// Name returns the engine name given at construction
func (s *ScriptEngine) Name() string {
	return s.name
}

// Close is a no-op; every call starts its own process
func (s *ScriptEngine) Close() error {
	return nil
}
