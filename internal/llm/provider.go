// Package llm wraps the completion services the pipeline depends on. The
// services are treated as untrusted, rate-limited oracles: responses may be
// malformed and every failure is classified as transient or fatal.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is a completion service. Implementations must classify failures
// as *TransientError (worth retrying) or *FatalError (abort the run).
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// TransientError is a retryable provider failure: timeout, rate limit, or a
// malformed response.
type TransientError struct {
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// FatalError is a configuration or auth failure from the provider. It is
// never retried; the whole run aborts.
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal provider error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Instrumented wraps a provider and records call latencies into stats.
type Instrumented struct {
	inner Provider
	stats *Stats
}

func NewInstrumented(inner Provider, stats *Stats) *Instrumented {
	return &Instrumented{inner: inner, stats: stats}
}

func (p *Instrumented) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	start := time.Now()
	out, err := p.inner.Complete(ctx, prompt, maxTokens)
	p.stats.Record(time.Since(start).Milliseconds())
	return out, err
}

func (p *Instrumented) Name() string {
	return p.inner.Name()
}
