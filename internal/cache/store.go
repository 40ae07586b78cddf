// Package cache maps chunk fingerprints to previously computed extraction
// results. All drivers are safe for concurrent use, and a write is atomic
// per key: readers see either the old value or the new one, never a mix.
package cache

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/entity-extractor/internal/config"
	"github.com/sells-group/entity-extractor/internal/model"
)

// Store is the extraction cache. Get reports a miss with ok=false and a nil
// error. Put overwrites any existing entry for the fingerprint.
type Store interface {
	Get(ctx context.Context, fingerprint string) (result model.ExtractionResult, ok bool, err error)
	Put(ctx context.Context, fingerprint string, result model.ExtractionResult) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// Open builds the Store selected by cfg.Driver. Persistent drivers are
// migrated before being returned.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case config.CacheDriverMemory, "":
		return NewMemory(), nil
	case config.CacheDriverLRU:
		return NewLRU(cfg.MaxEntries)
	case config.CacheDriverSQLite:
		s, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	case config.CacheDriverPostgres:
		s, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("cache: unsupported driver %q", cfg.Driver)
	}
}

// encode stores an empty result as "[]" so it reads back as a non-nil hit.
func encode(result model.ExtractionResult) ([]byte, error) {
	if result == nil {
		result = model.ExtractionResult{}
	}
	data, err := json.Marshal(result)
	return data, eris.Wrap(err, "cache: marshal result")
}

func decode(data []byte) (model.ExtractionResult, error) {
	result := model.ExtractionResult{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrap(err, "cache: unmarshal result")
	}
	return result, nil
}
