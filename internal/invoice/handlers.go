package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/ocr"
)

const (
	// maxUploadSize leaves room for high-resolution phone photos
	maxUploadSize   = int64(50 << 20)
	maxDocumentSize = int64(10 << 20)
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extraction.ErrInvalidInput), errors.Is(err, ocr.ErrUnsupportedFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleList returns every stored record
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleUpload reads a multipart "file" field and runs it through OCR and
// extraction
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ocr.ContentTypeFor(header.Filename)
	}

	record, err := s.service.ProcessImage(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing invoice", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// handleDocument accepts OCR output as a JSON RawDocument
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	var doc extraction.RawDocument
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.ProcessDocument(r.Context(), &doc)
	if err != nil {
		slog.Error("Error processing document", "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, "Invoice not found", statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetRecordFile(r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", statusFor(err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		slog.Error("Error deleting invoice", "error", err)
		writeError(w, "Error deleting invoice", statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
