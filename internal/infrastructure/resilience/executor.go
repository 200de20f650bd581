package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Call describes one guarded backend operation.
type Call struct {
	// Name keys the circuit breaker and labels retry logs.
	Name string
	// Kind, when set, is the domain error every failure is reported as.
	Kind error
	// Classify handles errors that carry no domain kind. Nil treats them
	// as permanent.
	Classify ErrorClassifier
}

// classify gives domain kinds precedence over the backend classifier:
// ErrTemporary is retried, caller faults are neither retried nor counted
// against the breaker.
func (c Call) classify(err error) ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return Ignored
	case domain.IsKind(err, domain.ErrTemporary):
		return Transient
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrConfig),
		domain.IsKind(err, domain.ErrDocumentNotFound):
		return Ignored
	case c.Classify == nil:
		return Permanent
	default:
		return c.Classify(err)
	}
}

// report maps the final error into domain kinds: an open breaker or an
// error the classifier would still retry becomes ErrTemporary, and every
// failure is tagged with Kind.
func (c Call) report(err error) error {
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrTemporary) && (IsCircuitOpen(err) || c.classify(err).Retryable) {
		err = domain.WrapError(domain.ErrTemporary, c.Name, err)
	}
	if c.Kind != nil && !domain.IsKind(err, c.Kind) {
		err = fmt.Errorf("%w: %w", c.Kind, err)
	}
	return err
}

// Executor runs calls with retries and a circuit breaker per call name. A
// nil Executor runs each call once and still reports domain kinds.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (e *Executor) Execute(ctx context.Context, call Call, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	call.Name = strings.TrimSpace(call.Name)
	if call.Name == "" {
		call.Name = "unknown"
	}
	if e == nil {
		return call.report(fn(ctx))
	}

	if !e.cfg.Breaker.Enabled {
		return call.report(e.retry(ctx, call, fn))
	}
	_, err := e.breaker(call).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, call, fn)
	})
	return call.report(err)
}

func (e *Executor) retry(ctx context.Context, call Call, fn func(context.Context) error) error {
	policy := e.cfg.Retry
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= policy.MaxAttempts || !call.classify(err).Retryable {
			return err
		}

		wait := policy.wait(attempt)
		slog.Warn("retry_attempt",
			"operation", call.Name,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) attempt(ctx context.Context, fn func(context.Context) error) error {
	if e.cfg.Retry.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Retry.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// sleep reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// breaker returns the breaker for call.Name. Its failure accounting uses
// the classification of the call that created it.
func (e *Executor) breaker(call Call) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[call.Name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](e.cfg.Breaker.settings(call.Name, func(err error) bool {
		return !call.classify(err).RecordFailure
	}))
	e.breakers[call.Name] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
