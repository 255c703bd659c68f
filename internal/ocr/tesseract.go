package ocr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

// TesseractOptions configures the tesseract command line
type TesseractOptions struct {
	Binary      string
	Lang        string
	PSM         int
	TessdataDir string
	// MinConfidence drops words whose reported confidence is below it
	MinConfidence float64
}

// Tesseract implements the Engine interface by running the tesseract CLI in
// TSV mode, which reports a confidence and a box for every word
type Tesseract struct {
	runner Runner
	opts   TesseractOptions
}

// NewTesseract creates a Tesseract engine that runs the real binary
func NewTesseract(opts TesseractOptions) *Tesseract {
	return NewTesseractWithRunner(opts, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract engine with a custom Runner
func NewTesseractWithRunner(opts TesseractOptions, runner Runner) *Tesseract {
	if opts.Binary == "" {
		opts.Binary = "tesseract"
	}
	if opts.Lang == "" {
		opts.Lang = "eng"
	}
	if opts.PSM == 0 {
		opts.PSM = 6
	}
	return &Tesseract{runner: runner, opts: opts}
}

// Extract runs tesseract on the page
func (t *Tesseract) Extract(ctx context.Context, data []byte, contentType string) (*extraction.RawDocument, error) {
	page, err := preparePage(data, contentType)
	if err != nil {
		return nil, err
	}
	path, cleanup, err := writeTemp(page)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{path, "stdout", "-l", t.opts.Lang, "--psm", strconv.Itoa(t.opts.PSM)}
	if t.opts.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.opts.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.opts.Binary, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return nil, fmt.Errorf("running tesseract: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("running tesseract: %w", err)
	}

	doc, err := parseTSV(out, t.opts.MinConfidence)
	if err != nil {
		return nil, fmt.Errorf("parsing tesseract output: %w", err)
	}
	return doc, nil
}

// Name returns "tesseract"
func (t *Tesseract) Name() string {
	return EngineTesseract
}

// Close is a no-op; every call starts its own process
func (t *Tesseract) Close() error {
	return nil
}

// tesseract TSV columns
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

const wordLevel = "5"

type lineKey struct {
	page, block, par, line string
}

// parseTSV turns tesseract TSV into a RawDocument. Words become tokens; words
// sharing page, block, paragraph and line numbers form a line of FullText.
// The document confidence is the mean of the reported word confidences.
// Words reporting a confidence below minConf are skipped.
func parseTSV(out []byte, minConf float64) (*extraction.RawDocument, error) {
	rows := strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n")
	if len(rows) == 0 || !strings.HasPrefix(rows[0], "level") {
		return nil, errors.New("missing TSV header")
	}

	doc := &extraction.RawDocument{}
	var order []lineKey
	lines := make(map[lineKey][]string)
	var sum float64
	var n int

	for i, row := range rows[1:] {
		if row == "" {
			continue
		}
		cols := strings.SplitN(row, "\t", tsvColumns)
		if len(cols) < tsvColumns {
			if len(cols) == tsvColumns-1 {
				// rows without recognized text drop the last column
				continue
			}
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, tsvColumns, len(cols))
		}
		if cols[colLevel] != wordLevel {
			continue
		}
		text := strings.TrimSpace(cols[colText])
		if text == "" {
			continue
		}

		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing confidence: %w", i+2, err)
		}
		switch {
		case conf < 0:
			conf = -1
		case conf < minConf:
			continue
		default:
			sum += conf
			n++
		}
		box, err := parseBox(cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		doc.Tokens = append(doc.Tokens, extraction.Token{Text: text, Confidence: conf, Box: box})

		key := lineKey{cols[colPage], cols[colBlock], cols[colPar], cols[colLine]}
		if _, seen := lines[key]; !seen {
			order = append(order, key)
		}
		lines[key] = append(lines[key], text)
	}

	text := make([]string, 0, len(order))
	for _, key := range order {
		text = append(text, strings.Join(lines[key], " "))
	}
	doc.FullText = strings.Join(text, "\n")
	if n > 0 {
		mean := sum / float64(n)
		doc.Confidence = &mean
	}
	return doc, nil
}

func parseBox(cols []string) (extraction.BoundingBox, error) {
	var v [4]int
	for i, c := range []int{colLeft, colTop, colWidth, colHeight} {
		n, err := strconv.Atoi(cols[c])
		if err != nil {
			return extraction.BoundingBox{}, fmt.Errorf("parsing box: %w", err)
		}
		v[i] = n
	}
	return extraction.BoundingBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
