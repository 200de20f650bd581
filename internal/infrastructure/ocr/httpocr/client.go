// Package httpocr sends rendered pages to a remote OCR service.
//
// The service receives the PNG as the request body of POST {baseURL}/ocr
// and answers with {"text": "..."}.
package httpocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/resilience"
)

var recognizeCall = resilience.Call{
	Name:     "ocr_image",
	Kind:     domain.ErrOCRFailure,
	Classify: resilience.HTTPClassifier(true),
}

type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Language   string
	Timeout    time.Duration
	Resilience resilience.Config
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(opts.Language),
		httpClient: &http.Client{Timeout: timeout},
		executor:   resilience.NewExecutor(opts.Resilience),
	}
}

func (c *Client) ImageToText(ctx context.Context, image []byte) (string, error) {
	var text string
	err := c.executor.Execute(ctx, recognizeCall, func(callCtx context.Context) error {
		var err error
		text, err = c.recognize(callCtx, image)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) recognize(ctx context.Context, image []byte) (string, error) {
	endpoint := c.baseURL + "/ocr"
	if c.language != "" {
		endpoint += "?" + url.Values{"lang": {c.language}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", resilience.ReadStatusError("ocr", "recognize", resp)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
