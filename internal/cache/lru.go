package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/entity-extractor/internal/model"
)

// LRU is a bounded in-process cache that evicts the least recently used
// fingerprint once MaxEntries is reached. An evicted chunk is simply
// re-extracted on its next occurrence.
type LRU struct {
	cache *lru.Cache[string, model.ExtractionResult]
}

// NewLRU creates a bounded cache holding at most size entries.
func NewLRU(size int) (*LRU, error) {
	c, err := lru.New[string, model.ExtractionResult](size)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: create lru of size %d", size)
	}
	return &LRU{cache: c}, nil
}

func (l *LRU) Get(_ context.Context, fingerprint string) (model.ExtractionResult, bool, error) {
	result, ok := l.cache.Get(fingerprint)
	if !ok {
		return nil, false, nil
	}
	return cloneResult(result), true, nil
}

func (l *LRU) Put(_ context.Context, fingerprint string, result model.ExtractionResult) error {
	l.cache.Add(fingerprint, cloneResult(result))
	return nil
}

func (l *LRU) Clear(_ context.Context) error {
	l.cache.Purge()
	return nil
}

func (l *LRU) Len(_ context.Context) (int, error) {
	return l.cache.Len(), nil
}

func (l *LRU) Close() error { return nil }
