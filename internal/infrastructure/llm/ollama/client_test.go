package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
)

func testOptions() Options {
	return Options{Resilience: resilience.Config{Retry: resilience.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}}}
}

func TestGenerateSendsPromptAndModel(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  Answer: 20 days  "}`))
	}))
	defer server.Close()

	text, err := New(server.URL+"/", "llama3", testOptions()).Generate(context.Background(), "question?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Answer: 20 days" {
		t.Fatalf("unexpected text %q", text)
	}
	if payload["model"] != "llama3" || payload["prompt"] != "question?" || payload["stream"] != false {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestGenerateRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	text, err := New(server.URL, "gen", testOptions()).Generate(context.Background(), "p")
	if err != nil || text != "ok" {
		t.Fatalf("Generate() = %q, %v", text, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGenerateIncludesHTTPBodyInModelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", testOptions()).Generate(context.Background(), "p")
	if !domain.IsKind(err, domain.ErrModel) {
		t.Fatalf("expected model error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected exhausted transient failure to be temporary, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `model "gen" not found`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", testOptions()).Generate(context.Background(), "p")
	if !domain.IsKind(err, domain.ErrModel) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent model error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestGenerateRetriesEmptyResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"response":"   "}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", testOptions()).Generate(context.Background(), "p")
	if !domain.IsKind(err, domain.ErrModel) {
		t.Fatalf("expected model error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}
