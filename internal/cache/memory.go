package cache

import (
	"context"
	"sync"

	"github.com/sells-group/entity-extractor/internal/model"
)

// Memory is an unbounded in-process cache. Entries live until Clear or
// process exit; use the LRU driver when growth must be bounded.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]model.ExtractionResult
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]model.ExtractionResult)}
}

// Get returns a copy of the cached result so callers cannot mutate the entry.
func (m *Memory) Get(_ context.Context, fingerprint string) (model.ExtractionResult, bool, error) {
	m.mu.RLock()
	result, ok := m.entries[fingerprint]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneResult(result), true, nil
}

func (m *Memory) Put(_ context.Context, fingerprint string, result model.ExtractionResult) error {
	stored := cloneResult(result)
	m.mu.Lock()
	m.entries[fingerprint] = stored
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]model.ExtractionResult)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Close() error { return nil }

// cloneResult deep-copies a result, mapping nil to an empty non-nil slice.
func cloneResult(result model.ExtractionResult) model.ExtractionResult {
	if result == nil {
		return model.ExtractionResult{}
	}
	return result.Clone()
}
