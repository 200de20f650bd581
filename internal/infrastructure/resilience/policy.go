package resilience

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy bounds how often and how fast a failed call is repeated.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the +/- fraction applied to each wait.
	Jitter float64
	// AttemptTimeout bounds a single attempt; zero leaves only the caller's deadline.
	AttemptTimeout time.Duration
}

// BreakerPolicy configures the per-operation circuit breaker.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
			Jitter:         0.2,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	return Config{
		Retry:   c.Retry.withDefaults(def.Retry),
		Breaker: c.Breaker.withDefaults(def.Breaker),
	}
}

func (p RetryPolicy) withDefaults(def RetryPolicy) RetryPolicy {
	p.MaxAttempts = positiveOr(p.MaxAttempts, def.MaxAttempts)
	p.InitialBackoff = positiveOr(p.InitialBackoff, def.InitialBackoff)
	p.MaxBackoff = max(positiveOr(p.MaxBackoff, def.MaxBackoff), p.InitialBackoff)
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = def.Jitter
	}
	p.AttemptTimeout = max(p.AttemptTimeout, 0)
	return p
}

func (p BreakerPolicy) withDefaults(def BreakerPolicy) BreakerPolicy {
	p.MinRequests = positiveOr(p.MinRequests, def.MinRequests)
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	p.OpenTimeout = positiveOr(p.OpenTimeout, def.OpenTimeout)
	p.HalfOpenMaxCalls = positiveOr(p.HalfOpenMaxCalls, def.HalfOpenMaxCalls)
	return p
}

// wait returns the pause after the given failed attempt (1-based): the
// capped exponential backoff spread by Jitter.
func (p RetryPolicy) wait(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	return jitter(time.Duration(min(backoff, float64(p.MaxBackoff))), p.Jitter)
}

// jitter spreads wait uniformly over [wait*(1-fraction), wait*(1+fraction)].
func jitter(wait time.Duration, fraction float64) time.Duration {
	if wait <= 0 || fraction <= 0 {
		return wait
	}
	delta := float64(wait) * fraction
	return time.Duration(float64(wait) - delta + rand.Float64()*2*delta)
}

func (p BreakerPolicy) settings(name string, isSuccessful func(error) bool) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: p.HalfOpenMaxCalls,
		Timeout:     p.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= p.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}
}

func positiveOr[T int | uint32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
