package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/ocr"
)

// fileResult is one line of batch output
type fileResult struct {
	File   string             `json:"file"`
	Engine string             `json:"engine"`
	Result *extraction.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// engineFunc returns the OCR engine for inputs that need one
type engineFunc func() (ocr.Engine, error)

// needsEngine reports whether any path has to go through OCR
func needsEngine(paths []string) bool {
	for _, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".json", ".txt":
		default:
			return true
		}
	}
	return false
}

// loadDocument reads a file into a RawDocument. JSON files hold a
// RawDocument, text files hold plain OCR output and anything else is an
// image or PDF for the OCR engine.
func loadDocument(ctx context.Context, path string, engine engineFunc) (*extraction.RawDocument, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var doc extraction.RawDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, "", fmt.Errorf("decoding %s: %w", path, err)
		}
		return &doc, invoice.EngineExternal, nil
	case ".txt":
		return &extraction.RawDocument{FullText: string(data)}, "text", nil
	}

	e, err := engine()
	if err != nil {
		return nil, "", err
	}
	doc, err := e.Extract(ctx, data, ocr.ContentTypeFor(path))
	if err != nil {
		return nil, "", fmt.Errorf("running OCR on %s: %w", path, err)
	}
	return doc, e.Name(), nil
}

// runBatch extracts every path and writes one JSON object per line to out.
// It returns the number of files that failed.
func runBatch(ctx context.Context, x *extraction.Extractor, engine engineFunc, paths []string, out io.Writer) (int, error) {
	enc := json.NewEncoder(out)
	failed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		line := fileResult{File: path}
		doc, name, err := loadDocument(ctx, path, engine)
		if err == nil {
			line.Engine = name
			line.Result, err = x.Extract(ctx, doc)
		}
		if err != nil {
			line.Error = err.Error()
			failed++
		}

		if err := enc.Encode(line); err != nil {
			return failed, fmt.Errorf("writing result: %w", err)
		}
	}
	return failed, nil
}
