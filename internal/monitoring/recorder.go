// Package monitoring aggregates per-chunk diagnostics into run summaries.
package monitoring

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/model"
)

// Summary is a point-in-time view of recorded chunk diagnostics. It is a
// copy; later records do not change it.
type Summary struct {
	TotalChunks  int     `json:"total_chunks"`
	CacheHits    int     `json:"cache_hits"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	// AvgAttempts averages service calls over chunks that were not served
	// from cache.
	AvgAttempts   float64 `json:"avg_attempts"`
	TotalAttempts int     `json:"total_attempts"`

	Successes int `json:"successes"`
	Failures  int `json:"failures"`

	StrategyUsage map[string]int          `json:"strategy_usage"`
	ErrorCounts   map[model.ErrorKind]int `json:"error_counts"`
	Outcomes      map[model.Outcome]int   `json:"outcomes"`

	// Records dropped by validation across all parsed responses.
	DroppedRecords int `json:"dropped_records"`

	CollectedAt time.Time `json:"collected_at"`
}

// Recorder accumulates chunk results. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	total         int
	cacheHits     int
	attempts      int
	extracted     int
	successes     int
	failures      int
	dropped       int
	strategyUsage map[string]int
	errorCounts   map[model.ErrorKind]int
	outcomes      map[model.Outcome]int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		strategyUsage: make(map[string]int),
		errorCounts:   make(map[model.ErrorKind]int),
		outcomes:      make(map[model.Outcome]int),
	}
}

// Record adds one chunk's diagnostics.
func (r *Recorder) Record(res model.ChunkResult) {
	d := res.Debug

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if res.Outcome != "" {
		r.outcomes[res.Outcome]++
	}
	if d.Success {
		r.successes++
	} else {
		r.failures++
	}
	if d.FromCache {
		r.cacheHits++
	} else {
		r.attempts += d.Attempts
		r.extracted++
	}
	if s := d.ParsingInfo.StrategyUsed; s != "" {
		r.strategyUsage[s]++
		r.dropped += d.ParsingInfo.OriginalCount - d.ParsingInfo.ValidCount
	}
	if d.Error != nil {
		r.errorCounts[d.Error.Kind]++
	}
}

// RecordAll adds every result in order.
func (r *Recorder) RecordAll(results []model.ChunkResult) {
	for _, res := range results {
		r.Record(res)
	}
}

// Snapshot returns a copy of the current aggregates.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		TotalChunks:    r.total,
		CacheHits:      r.cacheHits,
		TotalAttempts:  r.attempts,
		Successes:      r.successes,
		Failures:       r.failures,
		DroppedRecords: r.dropped,
		StrategyUsage:  make(map[string]int, len(r.strategyUsage)),
		ErrorCounts:    make(map[model.ErrorKind]int, len(r.errorCounts)),
		Outcomes:       make(map[model.Outcome]int, len(r.outcomes)),
		CollectedAt:    time.Now().UTC(),
	}
	if r.total > 0 {
		s.CacheHitRate = float64(r.cacheHits) / float64(r.total)
	}
	if r.extracted > 0 {
		s.AvgAttempts = float64(r.attempts) / float64(r.extracted)
	}
	for k, v := range r.strategyUsage {
		s.StrategyUsage[k] = v
	}
	for k, v := range r.errorCounts {
		s.ErrorCounts[k] = v
	}
	for k, v := range r.outcomes {
		s.Outcomes[k] = v
	}
	return s
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total, r.cacheHits, r.attempts, r.extracted = 0, 0, 0, 0
	r.successes, r.failures, r.dropped = 0, 0, 0
	r.strategyUsage = make(map[string]int)
	r.errorCounts = make(map[model.ErrorKind]int)
	r.outcomes = make(map[model.Outcome]int)
}

// Fields renders the summary as zap fields for a single log line.
func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("total_chunks", s.TotalChunks),
		zap.Int("cache_hits", s.CacheHits),
		zap.Float64("cache_hit_rate", s.CacheHitRate),
		zap.Float64("avg_attempts", s.AvgAttempts),
		zap.Int("successes", s.Successes),
		zap.Int("failures", s.Failures),
		zap.Int("dropped_records", s.DroppedRecords),
		zap.Any("strategy_usage", s.StrategyUsage),
		zap.Any("error_counts", s.ErrorCounts),
		zap.Any("outcomes", s.Outcomes),
	}
}
