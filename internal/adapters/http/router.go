package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/policy-query/internal/config"
	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/ports"
	"github.com/kirillkom/policy-query/internal/observability/metrics"
)

const (
	serviceName       = "pdfqa-api"
	multipartMemory   = 32 << 20
	backpressureWait  = 250 * time.Millisecond
	maxQueryBodyBytes = 64 << 10
)

type Router struct {
	cfg     config.Config
	ingest  ports.DocumentIngestor
	query   ports.QueryService
	admin   ports.DocumentAdmin
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	query ports.QueryService,
	admin ports.DocumentAdmin,
) *Router {
	return &Router{
		cfg:    cfg,
		ingest: ingest,
		query:  query,
		admin:  admin,
	}
}

// WithMetrics exposes /metrics and records request metrics.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/", rt.documentByID)
	mux.HandleFunc("/v1/query", rt.queryDocuments)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.MaxInflight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxInflight, backpressureWait)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"index_backend":  rt.cfg.IndexBackend,
		"live_documents": len(rt.admin.ListDocuments()),
	})
}

type uploadResponse struct {
	Message        string                `json:"message"`
	Documents      []domain.UploadResult `json:"documents"`
	TotalDocuments int                   `json:"total_documents"`
	Error          string                `json:"error,omitempty"`
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadDocuments(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"documents": rt.admin.ListDocuments()})
	case http.MethodDelete:
		if err := rt.admin.ClearAllDocuments(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "All documents cleared"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if limit := rt.cfg.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with 'files' is required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	switch {
	case len(files) == 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least 1 PDF file required"})
		return
	case len(files) > domain.MaxLiveDocuments:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("maximum %d PDF files allowed", domain.MaxLiveDocuments)})
		return
	}

	processed := make([]domain.UploadResult, 0, len(files))
	for _, fh := range files {
		result, err := rt.processFile(r, fh)
		if err != nil {
			slog.Warn("upload_failed",
				"request_id", requestIDFromContext(r.Context()),
				"filename", fh.Filename,
				"processed", len(processed),
				"error", err,
			)
			writeJSON(w, mapErrorToHTTPStatus(err), uploadResponse{
				Message:        fmt.Sprintf("Processed %d of %d document(s)", len(processed), len(files)),
				Documents:      processed,
				TotalDocuments: len(processed),
				Error:          err.Error(),
			})
			return
		}
		processed = append(processed, result)
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:        fmt.Sprintf("Successfully processed %d document(s)", len(processed)),
		Documents:      processed,
		TotalDocuments: len(processed),
	})
}

func (rt *Router) processFile(r *http.Request, fh *multipart.FileHeader) (domain.UploadResult, error) {
	file, err := fh.Open()
	if err != nil {
		return domain.UploadResult{}, domain.WrapError(domain.ErrInvalidInput, "open upload", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.UploadResult{}, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	return rt.ingest.ProcessUpload(r.Context(), data, fh.Filename)
}

func (rt *Router) documentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}
	if err := rt.admin.RemoveDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document removed", "document_id": id})
}

func (rt *Router) queryDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
		Mode  string `json:"mode"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	answer, err := rt.query.ProcessQuery(r.Context(), req.Query, domain.QueryMode(strings.ToLower(strings.TrimSpace(req.Mode))))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
