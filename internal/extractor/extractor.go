// Package extractor calls the remote extraction service for one chunk,
// retrying transient failures.
package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/model"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

// Service is the remote extraction service. Call returns the raw model text.
// Implementations should return *resilience.TransportError or
// *resilience.ServiceError; anything else is treated as a retryable service
// failure.
type Service interface {
	Call(ctx context.Context, prompt Prompt) (string, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f ServiceFunc) Call(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// Options configures an Extractor.
type Options struct {
	// MaxRetries is the total number of service calls allowed per chunk.
	// Values below 1 still make one call.
	MaxRetries int
	// RetryDelay is the wait before the first retry.
	RetryDelay time.Duration
	// RetryMultiplier grows the wait after each retry. Zero or one keeps
	// it fixed.
	RetryMultiplier float64
	// RetryJitter randomizes each wait by up to this fraction.
	RetryJitter float64
	// MaxRetryDelay caps the grown wait. Zero means 30s.
	MaxRetryDelay time.Duration
	// AttemptTimeout bounds each call individually. Zero disables it.
	AttemptTimeout time.Duration
	// EntityTypes is the allow-set rendered into the prompt.
	EntityTypes []string
	// Breaker, when set, is shared by every call made through the Extractor.
	Breaker *resilience.CircuitBreaker
}

// Extractor wraps a Service with prompt construction, per-attempt timeouts
// and bounded retry.
type Extractor struct {
	svc  Service
	opts Options
}

// New creates an Extractor.
func New(svc Service, opts Options) *Extractor {
	return &Extractor{svc: svc, opts: opts}
}

// Extract requests entities for chunk and returns the raw response text with
// the number of service calls made. On failure the error is either fatal
// (see resilience.IsFatal), the caller's context error, or an
// *resilience.ExhaustedRetriesError.
func (e *Extractor) Extract(ctx context.Context, chunk model.TextChunk) (string, int, error) {
	prompt := BuildPrompt(chunk.Text, e.opts.EntityTypes)
	fp := model.ShortFingerprint(chunk.Fingerprint())

	cfg := e.retryConfig()
	cfg.OnRetry = resilience.RetryLogger("extractor", "extract", zap.String("fingerprint", fp))

	raw, attempts, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return resilience.ExecuteVal(ctx, e.opts.Breaker, func(ctx context.Context) (string, error) {
			return e.call(ctx, prompt)
		})
	})
	if err != nil {
		return "", attempts, err
	}
	return raw, attempts, nil
}

func (e *Extractor) retryConfig() resilience.RetryConfig {
	cfg := resilience.FromRetryConfig(e.opts.MaxRetries, e.opts.RetryDelay)
	cfg.Multiplier = e.opts.RetryMultiplier
	cfg.JitterFraction = e.opts.RetryJitter
	cfg.MaxBackoff = e.opts.MaxRetryDelay
	return cfg
}

// call makes one service call under the per-attempt timeout. A timeout of
// this attempt alone is reported as a transport failure so it is retried.
func (e *Extractor) call(ctx context.Context, prompt Prompt) (string, error) {
	attemptCtx := ctx
	if e.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.opts.AttemptTimeout)
		defer cancel()
	}

	raw, err := e.svc.Call(attemptCtx, prompt)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var te *resilience.TransportError
		if !errors.As(err, &te) {
			err = resilience.NewTransportError(eris.Wrapf(err, "attempt timed out after %s", e.opts.AttemptTimeout))
		}
	}
	return "", err
}
