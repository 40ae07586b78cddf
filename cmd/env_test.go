package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/entity-extractor/internal/config"
	"github.com/sells-group/entity-extractor/internal/extractor"
	"github.com/sells-group/entity-extractor/internal/model"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Extraction.MaxRetries = 2
	c.Extraction.RetryDelay = time.Millisecond
	c.Extraction.BatchSize = 2
	c.Extraction.ConcurrencyLimit = 2
	c.Extraction.AttemptTimeout = time.Second
	c.Extraction.EntityTypes = []string{"PERSON", "ORG"}
	c.Extraction.SingleFlight = true
	c.Anthropic.Key = "test-key"
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	c.Anthropic.MaxTokens = 1024
	c.Cache.Driver = config.CacheDriverMemory
	c.Server.Port = 8080
	return c
}

// staticService answers every prompt with the same response and counts calls.
func staticService(raw string, calls *atomic.Int32) extractor.Service {
	return extractor.ServiceFunc(func(ctx context.Context, p extractor.Prompt) (string, error) {
		calls.Add(1)
		return raw, nil
	})
}

func TestNewExtractEnv_RunsAndCaches(t *testing.T) {
	var calls atomic.Int32
	env, err := newExtractEnv(context.Background(), testConfig(),
		staticService(`[{"name":"Ada","type":"person"},{"name":"Paris","type":"LOCATION"}]`, &calls))
	require.NoError(t, err)
	defer env.Close()

	chunks := []model.TextChunk{{Text: "Ada went to Paris."}, {Text: "Ada  went to Paris."}, {Text: "Other."}}
	results, err := env.Coordinator.Run(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, model.OutcomeSuccess, results[0].Outcome)
	require.Len(t, results[0].Records, 1, "LOCATION is outside the allow-set")
	assert.Equal(t, "PERSON", results[0].Records[0].Type)
	assert.Equal(t, model.OutcomeCached, results[1].Outcome)
	assert.Equal(t, int32(2), calls.Load())

	summary := env.Recorder.Snapshot()
	assert.Equal(t, 3, summary.TotalChunks)
	assert.Equal(t, 1, summary.CacheHits)

	n, err := env.Cache.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewExtractEnv_BreakerOpensAfterThreshold(t *testing.T) {
	c := testConfig()
	c.Extraction.MaxRetries = 5
	c.Extraction.BreakerThreshold = 2
	c.Extraction.BreakerReset = time.Hour
	c.Extraction.ConcurrencyLimit = 1

	var calls atomic.Int32
	svc := extractor.ServiceFunc(func(ctx context.Context, p extractor.Prompt) (string, error) {
		calls.Add(1)
		return "", resilience.NewServiceError(assert.AnError, 503)
	})

	env, err := newExtractEnv(context.Background(), c, svc)
	require.NoError(t, err)
	defer env.Close()

	results, err := env.Coordinator.Run(context.Background(), []model.TextChunk{{Text: "x"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.OutcomeFailed, results[0].Outcome)
	assert.Equal(t, 5, results[0].Debug.Attempts)
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits the remaining attempts")
}

func TestNewExtractEnv_UnknownDriver(t *testing.T) {
	c := testConfig()
	c.Cache.Driver = "redis"
	_, err := newExtractEnv(context.Background(), c, staticService("[]", new(atomic.Int32)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open cache")
}

func TestInitExtraction_ValidatesConfig(t *testing.T) {
	c := testConfig()
	c.Anthropic.Key = ""
	_, err := initExtraction(context.Background(), c, "extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestInitExtraction_BuildsEnvironment(t *testing.T) {
	c := testConfig()
	c.Anthropic.PromptCaching = true
	c.Anthropic.RequestsPerSecond = 5
	env, err := initExtraction(context.Background(), c, "serve")
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Coordinator)
	assert.NotNil(t, env.Recorder)
}
