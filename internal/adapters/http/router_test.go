package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/observability/metrics"
)

func multipartUpload(t *testing.T, field string, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range filenames {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fmt.Fprintf(part, "%%PDF-1.4 %s", name)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	cfg := testConfig()
	admin := &adminFake{docs: []domain.DocumentSummary{{ID: "a"}}}
	handler := NewRouter(cfg, &ingestFake{}, &queryFake{}, admin).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["index_backend"] != "memory" || body["live_documents"] != float64(1) {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestUploadDocumentsProcessesEachFile(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(testConfig(), ingest, &queryFake{}, &adminFake{}).Handler()

	body, contentType := multipartUpload(t, "files", "a.pdf", "b.pdf")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalDocuments != 2 || resp.Documents[0].Filename != "a.pdf" || resp.Documents[1].Filename != "b.pdf" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.Message, "Successfully processed 2") {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestUploadAcceptsSingleFileField(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(testConfig(), ingest, &queryFake{}, &adminFake{}).Handler()

	body, contentType := multipartUpload(t, "file", "policy.pdf")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || len(ingest.filenames) != 1 {
		t.Fatalf("expected single upload to succeed, got %d %v", res.Code, ingest.filenames)
	}
}

func TestUploadRejectsTooManyFiles(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(testConfig(), ingest, &queryFake{}, &adminFake{}).Handler()

	body, contentType := multipartUpload(t, "files", "a.pdf", "b.pdf", "c.pdf", "d.pdf")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(ingest.filenames) != 0 {
		t.Fatalf("no file may be processed, got %v", ingest.filenames)
	}
}

func TestUploadStopsAtFirstFailure(t *testing.T) {
	ingest := &ingestFake{errFor: map[string]error{
		"b.pdf": domain.WrapError(domain.ErrCapacity, "process upload", errors.New("full")),
	}}
	handler := NewRouter(testConfig(), ingest, &queryFake{}, &adminFake{}).Handler()

	body, contentType := multipartUpload(t, "files", "a.pdf", "b.pdf", "c.pdf")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	var resp uploadResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalDocuments != 1 || resp.Error == "" {
		t.Fatalf("expected partial result with error, got %+v", resp)
	}
	if len(ingest.filenames) != 1 {
		t.Fatalf("processing must stop after failure, got %v", ingest.filenames)
	}
}

func TestUploadRequiresMultipart(t *testing.T) {
	handler := newTestHandler(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestQueryEndpoint(t *testing.T) {
	query := &queryFake{}
	handler := NewRouter(testConfig(), &ingestFake{}, query, &adminFake{}).Handler()

	payload, _ := json.Marshal(map[string]string{"query": "What is the deductible?", "mode": "Cross"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(payload)))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if query.gotText != "What is the deductible?" || query.gotMode != domain.QueryModeCross {
		t.Fatalf("unexpected query forwarded: %q %q", query.gotText, query.gotMode)
	}
	var answer domain.AnswerResult
	if err := json.Unmarshal(res.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Answer != "$500 per incident" || answer.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestQueryMapsDomainInvalidInputTo400(t *testing.T) {
	query := &queryFake{err: domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("bad mode"))}
	handler := NewRouter(testConfig(), &ingestFake{}, query, &adminFake{}).Handler()

	payload, _ := json.Marshal(map[string]string{"query": "test", "mode": "fuzzy"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(payload)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query": "  "}`)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", res.Code)
	}
}

func TestDeleteDocumentReturns404ForNotFound(t *testing.T) {
	admin := &adminFake{removeErr: domain.WrapError(domain.ErrDocumentNotFound, "remove", errors.New("id=missing"))}
	handler := NewRouter(testConfig(), &ingestFake{}, &queryFake{}, admin).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDocumentAdministration(t *testing.T) {
	admin := &adminFake{docs: []domain.DocumentSummary{{ID: "a", Filename: "a.pdf"}}}
	handler := NewRouter(testConfig(), &ingestFake{}, &queryFake{}, admin).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"filename":"a.pdf"`) {
		t.Fatalf("unexpected list response %d %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/a", nil))
	if res.Code != http.StatusOK || len(admin.removed) != 1 || admin.removed[0] != "a" {
		t.Fatalf("unexpected remove %d %v", res.Code, admin.removed)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents", nil))
	if res.Code != http.StatusOK || admin.cleared != 1 {
		t.Fatalf("unexpected clear %d", res.Code)
	}

	admin.clearErr = domain.WrapError(domain.ErrIndex, "clear documents", errors.New("qdrant down"))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on index failure, got %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := NewRouter(testConfig(), &ingestFake{}, &queryFake{}, &adminFake{}).WithMetrics(m).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "pdfqa_http_requests_total") {
		t.Fatalf("expected request metrics, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrDocumentNotFound, http.StatusNotFound},
		{domain.ErrCapacity, http.StatusConflict},
		{domain.ErrExtraction, http.StatusUnprocessableEntity},
		{domain.ErrChunking, http.StatusUnprocessableEntity},
		{domain.ErrIndex, http.StatusServiceUnavailable},
		{domain.ErrTemporary, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		err := domain.WrapError(tc.kind, "op", errors.New("cause"))
		if got := mapErrorToHTTPStatus(err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}
