// Package qdrant stores chunks as sparse BM25 points in a Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
)

const sparseVectorName = "text"

var classify = resilience.HTTPClassifier(false)

type Client struct {
	baseURL    string
	collection string
	session    string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
}

type Options struct {
	Timeout    time.Duration
	Resilience resilience.Config
}

// New scopes every point to session so several processes can share one
// collection without seeing each other's documents.
func New(baseURL, collection, session string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		session:    session,
		httpClient: &http.Client{Timeout: timeout},
		executor:   resilience.NewExecutor(opts.Resilience),
	}
}

type point struct {
	ID      string                  `json:"id"`
	Vector  map[string]sparseVector `json:"vector"`
	Payload map[string]any          `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, point{
			ID:     c.pointID(chunk.ID),
			Vector: map[string]sparseVector{sparseVectorName: encodeSparseDocument(chunk.Text)},
			Payload: map[string]any{
				"session":     c.session,
				"doc_id":      chunk.DocumentID,
				"chunk_id":    chunk.ID,
				"chunk_index": chunk.Index,
				"text":        chunk.Text,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, "qdrant_upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	body := map[string]any{"filter": c.filter(domain.SearchFilter{DocumentID: documentID})}
	return c.do(ctx, "qdrant_delete", http.MethodPost, path, body, nil)
}

func (c *Client) Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.IndexHit, error) {
	query := encodeSparseQuery(queryText)
	if len(query.Indices) == 0 || limit <= 0 {
		return nil, nil
	}
	if err := c.ensureCollection(ctx); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"query":        query,
		"using":        sparseVectorName,
		"limit":        limit,
		"with_payload": true,
		"filter":       c.filter(filter),
	}
	var resp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	if err := c.do(ctx, "qdrant_search", http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.IndexHit, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, domain.IndexHit{
			ChunkID:    getStringPayload(p.Payload, "chunk_id"),
			DocumentID: getStringPayload(p.Payload, "doc_id"),
			ChunkIndex: getIntPayload(p.Payload, "chunk_index"),
			Text:       getStringPayload(p.Payload, "text"),
			Score:      p.Score,
		})
	}
	return out, nil
}

func (c *Client) Count(ctx context.Context, filter domain.SearchFilter) (int, error) {
	if err := c.ensureCollection(ctx); err != nil {
		return 0, err
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	body := map[string]any{"filter": c.filter(filter), "exact": true}
	if err := c.do(ctx, "qdrant_count", http.MethodPost, path, body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (c *Client) filter(filter domain.SearchFilter) map[string]any {
	must := []map[string]any{
		{"key": "session", "match": map[string]any{"value": c.session}},
	}
	if filter.DocumentID != "" {
		must = append(must, map[string]any{"key": "doc_id", "match": map[string]any{"value": filter.DocumentID}})
	}
	return map[string]any{"must": must}
}

// pointID is stable per session and chunk so repeated upserts overwrite.
func (c *Client) pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.session+"/"+chunkID)).String()
}

func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	if c.ensuredCollection {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, "qdrant_ensure_collection", http.MethodPut, path, reqBody, nil)
	// 409 when the collection already exists.
	if err != nil && !resilience.HasStatus(err, http.StatusConflict) {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	return c.executor.Execute(ctx, resilience.Call{Name: operation, Classify: classify}, func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.ReadStatusError("qdrant", operation, resp)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	})
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
