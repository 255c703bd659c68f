package extraction

import (
	"errors"
	"fmt"
)

// Region names a vertical zone of an invoice page
type Region string

const (
	RegionAll    Region = "all"
	RegionHeader Region = "header"
	RegionBody   Region = "body"
	RegionFooter Region = "footer"
)

// ErrInvalidInput is returned when the document cannot be processed at all
var ErrInvalidInput = errors.New("invalid input document")

// InputError describes a malformed document
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// BoundingBox is the pixel box of a token on the page
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Token is a single recognized word.
// Confidence ranges 0-100; a negative value means the engine did not report one.
type Token struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// RawDocument is the output of an OCR engine and the input of the extractor
type RawDocument struct {
	FullText   string            `json:"full_text"`
	Regions    map[Region]string `json:"regions,omitempty"`
	Tokens     []Token           `json:"tokens,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
}

// Validate reports whether the document is usable
func (d *RawDocument) Validate() error {
	if d == nil {
		return ErrInvalidInput
	}
	for region := range d.Regions {
		switch region {
		case RegionHeader, RegionBody, RegionFooter:
		default:
			return &InputError{Reason: fmt.Sprintf("unknown region %q", region)}
		}
	}
	for i, tok := range d.Tokens {
		if tok.Confidence > 100 {
			return &InputError{Reason: fmt.Sprintf("token %d confidence %.2f out of range", i, tok.Confidence)}
		}
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 100) {
		return &InputError{Reason: fmt.Sprintf("document confidence %.2f out of range", *d.Confidence)}
	}
	return nil
}

// reportedConfidence returns the mean of the token confidences that were
// reported, falling back to the document level value
func (d *RawDocument) reportedConfidence() (float64, bool) {
	var sum float64
	var n int
	for _, tok := range d.Tokens {
		if tok.Confidence < 0 {
			continue
		}
		sum += tok.Confidence
		n++
	}
	if n > 0 {
		return sum / float64(n), true
	}
	if d.Confidence != nil {
		return *d.Confidence, true
	}
	return 0, false
}
