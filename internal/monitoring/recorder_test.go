package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/entity-extractor/internal/model"
)

func successResult(attempts int, strategy string, original, valid int) model.ChunkResult {
	return model.ChunkResult{
		Outcome: model.OutcomeSuccess,
		Debug: model.DebugInfo{
			Attempts: attempts,
			Success:  true,
			ParsingInfo: model.ParsingInfo{
				Attempts:      1,
				StrategyUsed:  strategy,
				OriginalCount: original,
				ValidCount:    valid,
			},
		},
	}
}

func cachedResult() model.ChunkResult {
	return model.ChunkResult{
		Outcome: model.OutcomeCached,
		Debug:   model.DebugInfo{Success: true, FromCache: true},
	}
}

func failedResult(attempts int, kind model.ErrorKind) model.ChunkResult {
	return model.ChunkResult{
		Outcome: model.OutcomeFailed,
		Debug: model.DebugInfo{
			Attempts: attempts,
			Error:    &model.ErrorInfo{Kind: kind, Message: "x"},
		},
	}
}

func TestRecorder_EmptySnapshot(t *testing.T) {
	s := NewRecorder().Snapshot()
	assert.Zero(t, s.TotalChunks)
	assert.Zero(t, s.CacheHitRate)
	assert.Zero(t, s.AvgAttempts)
	assert.NotNil(t, s.StrategyUsage)
	assert.NotNil(t, s.ErrorCounts)
}

func TestRecorder_Aggregates(t *testing.T) {
	r := NewRecorder()
	r.RecordAll([]model.ChunkResult{
		successResult(1, model.StrategyStrict, 3, 3),
		successResult(2, model.StrategyRepair, 3, 2),
		cachedResult(),
		failedResult(3, model.ErrorKindExhausted),
		failedResult(1, model.ErrorKindParsing),
	})

	s := r.Snapshot()
	assert.Equal(t, 5, s.TotalChunks)
	assert.Equal(t, 1, s.CacheHits)
	assert.InDelta(t, 0.2, s.CacheHitRate, 1e-9)
	assert.Equal(t, 7, s.TotalAttempts)
	assert.InDelta(t, 7.0/4.0, s.AvgAttempts, 1e-9)
	assert.Equal(t, 3, s.Successes)
	assert.Equal(t, 2, s.Failures)
	assert.Equal(t, 1, s.DroppedRecords)
	assert.Equal(t, map[string]int{"strict": 1, "bracket-repair": 1}, s.StrategyUsage)
	assert.Equal(t, map[model.ErrorKind]int{model.ErrorKindExhausted: 1, model.ErrorKindParsing: 1}, s.ErrorCounts)
	assert.Equal(t, map[model.Outcome]int{
		model.OutcomeSuccess: 2,
		model.OutcomeCached:  1,
		model.OutcomeFailed:  2,
	}, s.Outcomes)
}

func TestRecorder_SnapshotIsACopy(t *testing.T) {
	r := NewRecorder()
	r.Record(successResult(1, model.StrategyStrict, 1, 1))

	s := r.Snapshot()
	s.StrategyUsage["strict"] = 99

	r.Record(successResult(1, model.StrategyStrict, 1, 1))
	assert.Equal(t, 99, s.StrategyUsage["strict"])
	assert.Equal(t, 1, s.TotalChunks)
	assert.Equal(t, 2, r.Snapshot().StrategyUsage["strict"])
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(cachedResult())
		}()
	}
	wg.Wait()

	s := r.Snapshot()
	assert.Equal(t, 100, s.TotalChunks)
	assert.InDelta(t, 1.0, s.CacheHitRate, 1e-9)
}

func TestRecorder_Reset(t *testing.T) {
	r := NewRecorder()
	r.Record(failedResult(2, model.ErrorKindTransport))
	r.Reset()

	s := r.Snapshot()
	assert.Zero(t, s.TotalChunks)
	assert.Empty(t, s.ErrorCounts)
}

func TestSummary_Fields(t *testing.T) {
	r := NewRecorder()
	r.Record(cachedResult())
	fields := r.Snapshot().Fields()
	assert.Len(t, fields, 10)
	assert.Equal(t, "total_chunks", fields[0].Key)
}
