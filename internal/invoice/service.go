package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/ocr"
)

// Extractor turns raw OCR output into a structured result
type Extractor interface {
	Extract(ctx context.Context, doc *extraction.RawDocument) (*extraction.Result, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now().UTC()
}

// Service runs uploads through OCR and extraction and keeps the results
type Service struct {
	db          DB
	engine      ocr.Engine
	extractor   Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID IDs and the system clock
func NewService(db DB, engine ocr.Engine, extractor Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, engine, extractor, storage, uuidGenerator{}, systemTime{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, engine ocr.Engine, extractor Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	reUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename keeps letters, digits, spaces, hyphens and underscores
// and caps the base name at 50 bytes
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(reUnsafeChars.ReplaceAllString(filepath.Ext(filename), ""))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = reUnsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(reSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}
	if ext != "" {
		ext = "." + ext
	}
	return base + ext
}

// ProcessImage stores an uploaded page, reads it with the OCR engine and
// extracts the invoice
func (s *Service) ProcessImage(ctx context.Context, filename string, data []byte, contentType string) (*Record, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("no OCR engine configured")
	}
	id := s.idGenerator.Generate()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	doc, err := s.engine.Extract(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to read invoice",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"engine", s.engine.Name(),
			"error", err,
		)
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("running OCR: %w", err)
	}

	record, err := s.extract(ctx, id, doc)
	if err != nil {
		s.storage.Delete(savedName)
		return nil, err
	}
	record.Filename = savedName
	record.ContentType = contentType
	record.Engine = s.engine.Name()

	if err := s.db.SaveRecord(record); err != nil {
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	return record, nil
}

// ProcessDocument extracts an invoice from OCR output produced elsewhere
func (s *Service) ProcessDocument(ctx context.Context, doc *extraction.RawDocument) (*Record, error) {
	record, err := s.extract(ctx, s.idGenerator.Generate(), doc)
	if err != nil {
		return nil, err
	}
	record.Engine = EngineExternal

	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	return record, nil
}

func (s *Service) extract(ctx context.Context, id string, doc *extraction.RawDocument) (*Record, error) {
	result, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}
	for _, w := range result.Warnings {
		slog.Warn("Extraction warning", "id", id, "kind", w.Kind, "field", w.Field, "message", w.Message)
	}
	return &Record{
		ID:        id,
		Result:    result,
		CreatedAt: s.timeSource.Now(),
	}, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all records
func (s *Service) ListRecords() ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// DeleteRecord removes a record and its source file
func (s *Service) DeleteRecord(id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if record.Filename != "" {
		if err := s.storage.Delete(record.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
		}
	}

	if err := s.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting record from database: %w", err)
	}
	return nil
}

// GetRecordFile returns the uploaded source file of a record
func (s *Service) GetRecordFile(id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}
	if record.Filename == "" {
		return nil, "", fmt.Errorf("%w: record %s has no source file", ErrNotFound, id)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting record file: %w", err)
	}
	return data, record.ContentType, nil
}
