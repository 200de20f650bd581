package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

var (
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	Permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	// Ignored covers failures caused by the caller, such as cancellation or a 4xx.
	Ignored = ErrorClassification{}
)

// StatusError is a non-2xx answer from a JSON backend.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// ReadStatusError consumes at most 2KiB of resp.Body into a StatusError.
func ReadStatusError(service, operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

func HasStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// HTTPClassifier classifies failures of HTTP backends. With retryDeadline
// set, a per-attempt deadline counts as transient; the retry loop still
// stops once the caller's own context is done.
func HTTPClassifier(retryDeadline bool, transient ...error) ErrorClassifier {
	return func(err error) ErrorClassification {
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			return Ignored
		case errors.Is(err, context.DeadlineExceeded):
			if retryDeadline {
				return Transient
			}
			return Ignored
		}
		for _, target := range transient {
			if errors.Is(err, target) {
				return ErrorClassification{Retryable: true}
			}
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if retryableStatus(statusErr.StatusCode) {
				return Transient
			}
			return Ignored
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return Transient
		}
		return Permanent
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
