// Package ollama generates answers with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
)

var errEmptyResponse = errors.New("ollama returned an empty response")

var generateCall = resilience.Call{
	Name:     "ollama_generate",
	Kind:     domain.ErrModel,
	Classify: resilience.HTTPClassifier(true, errEmptyResponse),
}

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
	options    generateOptions
}

type Options struct {
	Timeout     time.Duration
	Temperature float64
	Resilience  resilience.Config
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func New(baseURL, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   resilience.NewExecutor(opts.Resilience),
		options:    generateOptions{Temperature: opts.Temperature},
	}
}

// Generate runs a non-streaming completion. Transient failures are retried;
// exhausted retries surface as domain.ErrModel.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Options: c.options})
	if err != nil {
		return "", domain.WrapError(domain.ErrModel, "generate", fmt.Errorf("marshal request: %w", err))
	}

	var text string
	err = c.executor.Execute(ctx, generateCall, func(callCtx context.Context) error {
		var err error
		text, err = c.generate(callCtx, body)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", resilience.ReadStatusError("ollama", "generate", resp)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}
