package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/cache"
	"github.com/sells-group/entity-extractor/internal/config"
	"github.com/sells-group/entity-extractor/internal/extractor"
	"github.com/sells-group/entity-extractor/internal/monitoring"
	"github.com/sells-group/entity-extractor/internal/parser"
	"github.com/sells-group/entity-extractor/internal/pipeline"
	"github.com/sells-group/entity-extractor/internal/resilience"
	anthropicpkg "github.com/sells-group/entity-extractor/pkg/anthropic"
)

// extractEnv holds the cache, coordinator and recorder needed by the
// extract and serve commands.
type extractEnv struct {
	Cache       cache.Store
	Coordinator *pipeline.Coordinator
	Recorder    *monitoring.Recorder
	Checker     *monitoring.Checker
}

// Close releases resources held by the environment.
func (e *extractEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
}

// initExtraction validates the config for mode, builds the Anthropic caller
// and wires the extraction environment. Callers should defer env.Close().
func initExtraction(ctx context.Context, c *config.Config, mode string) (*extractEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	client := anthropicpkg.NewClient(c.Anthropic.Key,
		anthropicpkg.WithBaseURL(c.Anthropic.BaseURL),
		anthropicpkg.WithRateLimit(c.Anthropic.RequestsPerSecond),
	)
	callerOpts := []anthropicpkg.CallerOption{anthropicpkg.WithTemperature(c.Anthropic.Temperature)}
	if c.Anthropic.PromptCaching {
		callerOpts = append(callerOpts, anthropicpkg.WithPromptCaching())
	}
	caller := anthropicpkg.NewCaller(client, c.Anthropic.Model, c.Anthropic.MaxTokens, callerOpts...)

	return newExtractEnv(ctx, c, caller)
}

// newExtractEnv wires cache, extractor, parser, recorder and coordinator
// around svc.
func newExtractEnv(ctx context.Context, c *config.Config, svc extractor.Service) (*extractEnv, error) {
	store, err := cache.Open(ctx, c.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}

	var breaker *resilience.CircuitBreaker
	if c.Extraction.BreakerThreshold > 0 {
		bcfg := resilience.DefaultCircuitBreakerConfig()
		bcfg.FailureThreshold = c.Extraction.BreakerThreshold
		if c.Extraction.BreakerReset > 0 {
			bcfg.ResetTimeout = c.Extraction.BreakerReset
		}
		breaker = resilience.NewCircuitBreaker(bcfg)
	}

	ext := extractor.New(svc, extractor.Options{
		MaxRetries:      c.Extraction.MaxRetries,
		RetryDelay:      c.Extraction.RetryDelay,
		RetryMultiplier: c.Extraction.RetryMultiplier,
		RetryJitter:     c.Extraction.RetryJitter,
		MaxRetryDelay:   c.Extraction.RetryMaxDelay,
		AttemptTimeout:  c.Extraction.AttemptTimeout,
		EntityTypes:     c.Extraction.EntityTypes,
		Breaker:         breaker,
	})

	rec := monitoring.NewRecorder()
	coord := pipeline.New(store, ext, parser.New(c.Extraction.EntityTypes), pipeline.Options{
		BatchSize:        c.Extraction.BatchSize,
		ConcurrencyLimit: c.Extraction.ConcurrencyLimit,
		SingleFlight:     c.Extraction.SingleFlight,
		Recorder:         rec,
	})

	zap.L().Info("extraction environment ready",
		zap.String("cache_driver", c.Cache.Driver),
		zap.String("model", c.Anthropic.Model),
		zap.Int("max_retries", c.Extraction.MaxRetries),
		zap.Int("batch_size", c.Extraction.BatchSize),
		zap.Int("concurrency_limit", c.Extraction.ConcurrencyLimit),
		zap.Bool("circuit_breaker", breaker != nil),
	)

	return &extractEnv{
		Cache:       store,
		Coordinator: coord,
		Recorder:    rec,
		Checker:     monitoring.NewChecker(rec, monitoring.NewAlerter(c.Monitoring), c.Monitoring),
	}, nil
}
