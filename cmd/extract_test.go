package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/entity-extractor/internal/extractor"
	"github.com/sells-group/entity-extractor/internal/model"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

func TestLoadChunks_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\n\ntwo\n"), 0o600))

	chunks, err := loadChunks(path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, texts(chunks))
}

func TestLoadChunks_MissingFile(t *testing.T) {
	_, err := loadChunks(filepath.Join(t.TempDir(), "nope.txt"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open input")
}

func TestWriteDeadLetters_RoundTripsThroughJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl")
	entries := []resilience.DLQEntry{
		{Index: 1, Text: "multi\nline \"quoted\"", ErrorKind: model.ErrorKindExhausted},
		{Index: 4, Text: "second", ErrorKind: model.ErrorKindParsing},
	}
	require.NoError(t, writeDeadLetters(path, entries))

	chunks, err := loadChunks(path, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"multi\nline \"quoted\"", "second"}, texts(chunks))
}

func TestWriteDeadLetters_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl")
	require.NoError(t, writeDeadLetters(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRunExtract_Success(t *testing.T) {
	var calls atomic.Int32
	env, err := newExtractEnv(context.Background(), testConfig(),
		staticService(`[{"name":"Ada","type":"PERSON"}]`, &calls))
	require.NoError(t, err)
	defer env.Close()

	var out bytes.Buffer
	err = runExtract(context.Background(), env, []model.TextChunk{{Text: "Ada."}}, &out, formatJSON, "")
	require.NoError(t, err)

	var results []model.ChunkResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, model.OutcomeSuccess, results[0].Outcome)
}

func TestRunExtract_InterruptedRunFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := testConfig()
	c.Extraction.BatchSize = 1
	c.Extraction.ConcurrencyLimit = 1
	svc := extractor.ServiceFunc(func(ctx context.Context, p extractor.Prompt) (string, error) {
		if p.User == "two" {
			cancel()
			return "", ctx.Err()
		}
		return `[{"name":"Ada","type":"PERSON"}]`, nil
	})
	env, err := newExtractEnv(context.Background(), c, svc)
	require.NoError(t, err)
	defer env.Close()

	failed := filepath.Join(t.TempDir(), "failed.jsonl")
	var out bytes.Buffer
	chunks := []model.TextChunk{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	err = runExtract(ctx, env, chunks, &out, formatJSON, failed)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var results []model.ChunkResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 3)
	assert.Equal(t, model.OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, model.OutcomeCancelled, results[1].Outcome)
	assert.Equal(t, model.OutcomeCancelled, results[2].Outcome)

	retry, err := loadChunks(failed, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, texts(retry))
}
