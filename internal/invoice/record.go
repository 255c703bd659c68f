package invoice

import (
	"errors"
	"time"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

// ErrNotFound is returned when no record has the requested ID
var ErrNotFound = errors.New("invoice not found")

// EngineExternal marks records built from OCR output submitted by the client
const EngineExternal = "external"

// Record is a processed document and its extraction result
type Record struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename,omitempty"`
	ContentType string             `json:"content_type,omitempty"`
	Engine      string             `json:"engine"`
	Result      *extraction.Result `json:"result"`
	CreatedAt   time.Time          `json:"created_at"`
}
