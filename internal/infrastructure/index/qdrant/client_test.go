package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
)

func testOptions() Options {
	return Options{Resilience: resilience.Config{Retry: resilience.RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2,
	}}}
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newRecordingServer(t *testing.T, respond func(w http.ResponseWriter, r recordedRequest)) (*httptest.Server, *[]recordedRequest, *sync.Mutex) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body}
		mu.Lock()
		requests = append(requests, rec)
		mu.Unlock()
		respond(w, rec)
	}))
	t.Cleanup(server.Close)
	return server, &requests, &mu
}

func TestUpsertEnsuresCollectionOnceAndScopesPoints(t *testing.T) {
	var ensureCalls int32
	server, requests, mu := newRecordingServer(t, func(w http.ResponseWriter, r recordedRequest) {
		switch {
		case r.Method == http.MethodPut && r.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.Path == "/collections/chunks/points":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	client := New(server.URL, "chunks", "session-1", testOptions())
	chunks := []domain.Chunk{{ID: "doc-1:0", DocumentID: "doc-1", Index: 0, Text: "Annual leave is twenty days."}}
	for i := 0; i < 2; i++ {
		if err := client.Upsert(context.Background(), chunks); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection once, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	create := (*requests)[0].Body
	sparse, _ := create["sparse_vectors"].(map[string]any)
	if _, ok := sparse[sparseVectorName]; !ok {
		t.Fatalf("expected sparse vector config, got %v", create)
	}

	upserts := []recordedRequest{(*requests)[1], (*requests)[2]}
	var ids []string
	for _, req := range upserts {
		points := req.Body["points"].([]any)
		p := points[0].(map[string]any)
		payload := p["payload"].(map[string]any)
		if payload["session"] != "session-1" || payload["chunk_id"] != "doc-1:0" {
			t.Fatalf("unexpected payload: %v", payload)
		}
		if _, ok := p["vector"].(map[string]any)[sparseVectorName]; !ok {
			t.Fatalf("expected named sparse vector, got %v", p["vector"])
		}
		ids = append(ids, p["id"].(string))
	}
	if ids[0] != ids[1] {
		t.Fatalf("point ids must be stable across upserts: %v", ids)
	}
}

func TestSearchSendsSparseQueryWithFilter(t *testing.T) {
	server, requests, mu := newRecordingServer(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Path == "/collections/chunks/points/query" {
			_, _ = w.Write([]byte(`{"result":{"points":[{"id":"x","score":3.5,"payload":{"chunk_id":"doc-2:4","doc_id":"doc-2","chunk_index":4,"text":"Remote work three days."}}]}}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
	})

	client := New(server.URL, "chunks", "s", testOptions())
	hits, err := client.Search(context.Background(), "remote work", 5, domain.SearchFilter{DocumentID: "doc-2"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "doc-2:4" || hits[0].ChunkIndex != 4 || hits[0].Score != 3.5 {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	mu.Lock()
	defer mu.Unlock()
	query := (*requests)[len(*requests)-1].Body
	if query["using"] != sparseVectorName {
		t.Fatalf("expected named sparse vector, got %v", query["using"])
	}
	must := query["filter"].(map[string]any)["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected session and document conditions, got %v", must)
	}
}

func TestSearchSkipsStopwordOnlyQuery(t *testing.T) {
	var calls int32
	server, _, _ := newRecordingServer(t, func(w http.ResponseWriter, r recordedRequest) {
		atomic.AddInt32(&calls, 1)
	})

	hits, err := New(server.URL, "chunks", "s", testOptions()).Search(context.Background(), "what is the", 5, domain.SearchFilter{})
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits and no error, got %v %v", hits, err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no requests, got %d", atomic.LoadInt32(&calls))
	}
}

func TestDeleteAndCountUseSessionFilter(t *testing.T) {
	server, requests, mu := newRecordingServer(t, func(w http.ResponseWriter, r recordedRequest) {
		switch r.Path {
		case "/collections/chunks/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":0}}`))
		default:
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}
	})

	client := New(server.URL, "chunks", "s", testOptions())
	if err := client.DeleteDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteDocument() error: %v", err)
	}
	n, err := client.Count(context.Background(), domain.SearchFilter{})
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v", n, err)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawDelete bool
	for _, r := range *requests {
		if r.Path == "/collections/chunks/points/delete" {
			sawDelete = true
			must := r.Body["filter"].(map[string]any)["must"].([]any)
			if len(must) != 2 {
				t.Fatalf("delete must filter by session and document, got %v", must)
			}
		}
	}
	if !sawDelete {
		t.Fatalf("expected delete request")
	}
}

func TestServerErrorsAreRetriedAndTemporary(t *testing.T) {
	var calls int32
	server, _, _ := newRecordingServer(t, func(w http.ResponseWriter, r recordedRequest) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := New(server.URL, "chunks", "s", testOptions()).Upsert(context.Background(), []domain.Chunk{{ID: "a:0", Text: "x"}})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}
