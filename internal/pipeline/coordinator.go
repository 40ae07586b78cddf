// Package pipeline runs batches of text chunks through cache lookup,
// extraction and parsing, returning results in input order.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/entity-extractor/internal/cache"
	"github.com/sells-group/entity-extractor/internal/model"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

// Extractor fetches the raw model response for one chunk.
type Extractor interface {
	Extract(ctx context.Context, chunk model.TextChunk) (raw string, attempts int, err error)
}

// Parser turns a raw response into validated records.
type Parser interface {
	Parse(raw string) (model.ExtractionResult, model.ParsingInfo, error)
}

// Recorder receives every chunk result once its group finishes.
type Recorder interface {
	RecordAll(results []model.ChunkResult)
}

// Progress is reported after each group completes. A group interrupted by
// cancellation is not reported.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Options configures a Coordinator.
type Options struct {
	// BatchSize is the number of chunks per group. Groups run one after
	// another. Values below 1 are treated as 1.
	BatchSize int
	// ConcurrencyLimit bounds concurrent chunks within a group. Values below
	// 1 are treated as 1.
	ConcurrencyLimit int
	// SingleFlight makes concurrent misses on the same fingerprint share one
	// extraction.
	SingleFlight bool
	// OnProgress, when set, is called after each group.
	OnProgress func(Progress)
	// Recorder, when set, receives every chunk result.
	Recorder Recorder
}

// Coordinator runs extraction batches. It is safe to share across
// concurrent Run calls; they share the cache and in-flight extractions.
type Coordinator struct {
	cache  cache.Store
	ext    Extractor
	parser Parser
	opts   Options
	flight singleflight.Group
}

// New creates a Coordinator.
func New(store cache.Store, ext Extractor, parser Parser, opts Options) *Coordinator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = 1
	}
	return &Coordinator{cache: store, ext: ext, parser: parser, opts: opts}
}

// Run processes chunks in consecutive groups of BatchSize and returns one
// result per chunk, index-aligned with the input.
//
// A chunk that fails on its own (exhausted retries, unparseable response) is
// reported in its result and does not stop the batch. A fatal service error
// stops the run and Run returns (nil, err). When ctx ends, in-flight and
// unstarted chunks are reported with OutcomeCancelled and Run returns the
// results together with ctx.Err().
func (c *Coordinator) Run(ctx context.Context, chunks []model.TextChunk) ([]model.ChunkResult, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting batch",
		zap.Int("chunks", len(chunks)),
		zap.Int("batch_size", c.opts.BatchSize),
		zap.Int("concurrency", c.opts.ConcurrencyLimit),
	)

	results := make([]model.ChunkResult, len(chunks))
	next := 0

	for next < len(chunks) {
		if ctx.Err() != nil {
			break
		}
		start := next
		end := min(start+c.opts.BatchSize, len(chunks))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.ConcurrencyLimit)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := c.processChunk(gCtx, i, chunks[i])
				results[i] = res
				return err
			})
		}
		err := g.Wait()
		c.record(results[start:end])
		if err != nil {
			log.Error("pipeline: aborting batch on fatal error",
				zap.Int("group_start", start),
				zap.Error(err),
			)
			return nil, err
		}

		next = end
		if ctx.Err() != nil {
			break
		}
		log.Info("pipeline: group complete",
			zap.Int("processed", next),
			zap.Int("total", len(chunks)),
		)
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(Progress{Processed: next, Total: len(chunks)})
		}
	}

	if ctx.Err() != nil {
		for i := next; i < len(chunks); i++ {
			results[i] = cancelledResult(i, chunks[i].Fingerprint(), ctx.Err())
		}
		c.record(results[next:])
		log.Warn("pipeline: batch cancelled",
			zap.Int("processed", next),
			zap.Int("total", len(chunks)),
		)
	}
	return results, ctx.Err()
}

// outcome is what one extraction produced. Err is set only for fatal errors.
type outcome struct {
	records model.ExtractionResult
	debug   model.DebugInfo
	outcome model.Outcome
	err     error
}

// processChunk returns the chunk's result and, only for a fatal service
// error, that error.
func (c *Coordinator) processChunk(ctx context.Context, idx int, chunk model.TextChunk) (model.ChunkResult, error) {
	fp := chunk.Fingerprint()
	if ctx.Err() != nil {
		return cancelledResult(idx, fp, ctx.Err()), nil
	}

	var out outcome
	if records, ok := c.lookup(ctx, fp); ok {
		out = cachedOutcome(records)
	} else if c.opts.SingleFlight {
		out = c.extractShared(ctx, chunk, fp)
	} else {
		out = c.extract(ctx, chunk, fp)
	}

	res := model.ChunkResult{
		Index:       idx,
		Fingerprint: fp,
		Records:     out.records,
		Debug:       out.debug,
		Outcome:     out.outcome,
	}
	logChunk(res)
	return res, out.err
}

// extractShared joins an in-flight extraction of the same fingerprint if
// one exists. Callers that joined see the leader's success as a cache hit.
func (c *Coordinator) extractShared(ctx context.Context, chunk model.TextChunk, fp string) outcome {
	ran := false
	v, _, _ := c.flight.Do(fp, func() (any, error) {
		ran = true
		// A flight that finished between our lookup and Do has already
		// written the cache.
		if records, ok := c.lookup(ctx, fp); ok {
			return cachedOutcome(records), nil
		}
		return c.extract(ctx, chunk, fp), nil
	})
	shared := v.(outcome)
	if ran {
		return shared
	}

	switch shared.outcome {
	case model.OutcomeSuccess, model.OutcomeCached:
		return cachedOutcome(shared.records.Clone())
	case model.OutcomeCancelled:
		// The leader's context ended, not necessarily ours.
		if ctx.Err() == nil {
			return c.extract(ctx, chunk, fp)
		}
		return cancelledOutcome(ctx.Err(), 0)
	default:
		return outcome{
			records: model.ExtractionResult{},
			debug:   shared.debug.Clone(),
			outcome: shared.outcome,
			err:     shared.err,
		}
	}
}

// extract calls the service, parses the response and caches a successful
// result. Failures are never cached.
func (c *Coordinator) extract(ctx context.Context, chunk model.TextChunk, fp string) outcome {
	raw, attempts, err := c.ext.Extract(ctx, chunk)
	if err != nil {
		if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
			return cancelledOutcome(err, attempts)
		}
		out := outcome{
			records: model.ExtractionResult{},
			debug: model.DebugInfo{
				Attempts: attempts,
				Error:    errorInfo(err),
			},
			outcome: model.OutcomeFailed,
		}
		if resilience.IsFatal(err) {
			out.err = err
		}
		return out
	}

	records, info, err := c.parser.Parse(raw)
	debug := model.DebugInfo{Attempts: attempts, ParsingInfo: info}
	if err != nil {
		debug.Error = &model.ErrorInfo{Kind: model.ErrorKindParsing, Message: err.Error()}
		return outcome{records: model.ExtractionResult{}, debug: debug, outcome: model.OutcomeFailed}
	}

	debug.Success = true
	if putErr := c.cache.Put(ctx, fp, records); putErr != nil {
		zap.L().Warn("pipeline: cache write failed",
			zap.String("fingerprint", model.ShortFingerprint(fp)),
			zap.Error(putErr),
		)
	}
	return outcome{records: records, debug: debug, outcome: model.OutcomeSuccess}
}

// lookup treats a cache error as a miss.
func (c *Coordinator) lookup(ctx context.Context, fp string) (model.ExtractionResult, bool) {
	records, ok, err := c.cache.Get(ctx, fp)
	if err != nil {
		zap.L().Warn("pipeline: cache read failed, treating as miss",
			zap.String("fingerprint", model.ShortFingerprint(fp)),
			zap.Error(err),
		)
		return nil, false
	}
	if ok && records == nil {
		records = model.ExtractionResult{}
	}
	return records, ok
}

func (c *Coordinator) record(results []model.ChunkResult) {
	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordAll(results)
	}
}

func cachedOutcome(records model.ExtractionResult) outcome {
	return outcome{
		records: records,
		debug:   model.DebugInfo{Success: true, FromCache: true},
		outcome: model.OutcomeCached,
	}
}

func cancelledOutcome(err error, attempts int) outcome {
	return outcome{
		records: model.ExtractionResult{},
		debug: model.DebugInfo{
			Attempts: attempts,
			Error:    &model.ErrorInfo{Kind: model.ErrorKindCancelled, Message: err.Error()},
		},
		outcome: model.OutcomeCancelled,
	}
}

func cancelledResult(idx int, fp string, err error) model.ChunkResult {
	if err == nil {
		err = context.Canceled
	}
	out := cancelledOutcome(err, 0)
	return model.ChunkResult{
		Index:       idx,
		Fingerprint: fp,
		Records:     out.records,
		Debug:       out.debug,
		Outcome:     out.outcome,
	}
}

func errorInfo(err error) *model.ErrorInfo {
	info := &model.ErrorInfo{Kind: resilience.Classify(err), Message: err.Error()}
	var ex *resilience.ExhaustedRetriesError
	if errors.As(err, &ex) {
		info.Cause = resilience.Classify(ex.Last)
	}
	return info
}

func logChunk(res model.ChunkResult) {
	fields := []zap.Field{
		zap.Int("chunk", res.Index),
		zap.String("fingerprint", model.ShortFingerprint(res.Fingerprint)),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("attempts", res.Debug.Attempts),
		zap.Int("records", len(res.Records)),
	}
	if s := res.Debug.ParsingInfo.StrategyUsed; s != "" {
		fields = append(fields, zap.String("strategy", s))
	}
	if res.Debug.Error != nil {
		fields = append(fields,
			zap.String("error_kind", string(res.Debug.Error.Kind)),
			zap.String("error", res.Debug.Error.Message),
		)
		zap.L().Warn("pipeline: chunk failed", fields...)
		return
	}
	zap.L().Debug("pipeline: chunk complete", fields...)
}
