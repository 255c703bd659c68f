package invoice

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		engine      *mockEngine
		extractor   *mockExtractor
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		engine = newMockEngine()
		extractor = newMockExtractor()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, engine, extractor, storage,
			&mockIDGenerator{id: "id-1"},
			&mockTimeSource{now: time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)})
		server := NewServerWithMux(service, auth, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	upload := func(filename, partType string, data []byte) (io.Reader, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if partType != "" {
			h.Set("Content-Type", partType)
		}
		part, err := mw.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(mw.Close()).To(Succeed())
		return &buf, mw.FormDataContentType()
	}

	Describe("GET /api/invoices", func() {
		When("records exist", func() {
			BeforeEach(func() {
				db.records["a"] = &Record{ID: "a"}
				db.records["b"] = &Record{ID: "b"}
			})

			It("should return all records as JSON", func() {
				resp := do(http.MethodGet, "/api/invoices", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var records []*Record
				decode(resp, &records)
				Expect(records).To(HaveLen(2))
			})
		})

		When("no records exist", func() {
			It("should return an empty array", func() {
				resp := do(http.MethodGet, "/api/invoices", nil, "")
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("should return status Internal Server Error", func() {
				resp := do(http.MethodGet, "/api/invoices", nil, "")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("POST /api/invoices", func() {
		It("should process the upload", func() {
			body, ct := upload("scan.png", "image/png", []byte("png bytes"))
			resp := do(http.MethodPost, "/api/invoices", body, ct)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var record Record
			decode(resp, &record)
			Expect(record.ID).To(Equal("id-1"))
			Expect(record.Result.Invoice.InvoiceNumber).To(Equal("INV-1"))
			Expect(storage.files).To(HaveKey("id-1_scan.png"))
		})

		It("should guess the content type from the file name", func() {
			body, ct := upload("scan.pdf", "", []byte("%PDF-1.4"))
			resp := do(http.MethodPost, "/api/invoices", body, ct)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(engine.contentType).To(Equal("application/pdf"))
		})

		It("should reject requests without a file", func() {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			Expect(mw.WriteField("note", "no file")).To(Succeed())
			Expect(mw.Close()).To(Succeed())

			resp := do(http.MethodPost, "/api/invoices", &buf, mw.FormDataContentType())
			var payload map[string]string
			decode(resp, &payload)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(payload["error"]).To(Equal("No file provided"))
		})

		When("the OCR engine fails", func() {
			BeforeEach(func() {
				engine.err = errors.New("tesseract missing")
			})

			It("should return the error as JSON", func() {
				body, ct := upload("scan.png", "image/png", []byte("png bytes"))
				resp := do(http.MethodPost, "/api/invoices", body, ct)
				var payload map[string]string
				decode(resp, &payload)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(payload["error"]).To(ContainSubstring("tesseract missing"))
			})
		})
	})

	Describe("POST /api/invoices/ocr", func() {
		It("should extract from the submitted document", func() {
			doc := `{"full_text": "Invoice No: INV-1", "tokens": [{"text": "INV-1", "confidence": 90, "box": {"x": 1, "y": 2, "width": 3, "height": 4}}]}`
			resp := do(http.MethodPost, "/api/invoices/ocr", strings.NewReader(doc), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var record Record
			decode(resp, &record)
			Expect(record.Engine).To(Equal(EngineExternal))
			Expect(extractor.doc.FullText).To(Equal("Invoice No: INV-1"))
			Expect(extractor.doc.Tokens).To(HaveLen(1))
			Expect(extractor.doc.Tokens[0].Box.Height).To(Equal(4))
		})

		It("should reject malformed JSON", func() {
			resp := do(http.MethodPost, "/api/invoices/ocr", strings.NewReader(`{"full_text":`), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject unknown fields", func() {
			resp := do(http.MethodPost, "/api/invoices/ocr", strings.NewReader(`{"text": "x"}`), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("the document is invalid", func() {
			BeforeEach(func() {
				extractor.err = &extraction.InputError{Reason: `unknown region "margin"`}
			})

			It("should return status Bad Request", func() {
				resp := do(http.MethodPost, "/api/invoices/ocr", strings.NewReader(`{"full_text": "x", "regions": {"margin": "x"}}`), "application/json")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("GET /api/invoices/{id}", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", Engine: "tesseract"}
		})

		It("should return the record", func() {
			resp := do(http.MethodGet, "/api/invoices/a", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record Record
			decode(resp, &record)
			Expect(record.Engine).To(Equal("tesseract"))
		})

		It("should return status Not Found for unknown IDs", func() {
			resp := do(http.MethodGet, "/api/invoices/missing", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/invoices/{id}/file", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", Filename: "a_scan.png", ContentType: "image/png"}
			storage.files["a_scan.png"] = []byte("png bytes")
		})

		It("should return the source file", func() {
			resp := do(http.MethodGet, "/api/invoices/a/file", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("png bytes")))
		})
	})

	Describe("DELETE /api/invoices/{id}", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a"}
		})

		It("should return status No Content", func() {
			resp := do(http.MethodDelete, "/api/invoices/a", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).To(BeEmpty())
		})

		It("should return status Not Found for unknown IDs", func() {
			resp := do(http.MethodDelete, "/api/invoices/missing", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do(http.MethodOptions, "/api/invoices", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should set headers on normal responses", func() {
			resp := do(http.MethodGet, "/api/invoices", nil, "")
			resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should accept valid credentials", func() {
			resp := do(http.MethodGet, "/api/invoices", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject missing credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should keep the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
