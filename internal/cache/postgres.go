package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/entity-extractor/internal/model"
)

// Pool is the subset of pgxpool.Pool the cache uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres shares the cache across processes through a Postgres table.
type Postgres struct {
	pool Pool
}

// NewPostgres creates a Postgres cache with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	fingerprint TEXT PRIMARY KEY,
	records     JSONB NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Get(ctx context.Context, fingerprint string) (model.ExtractionResult, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT records FROM extraction_cache WHERE fingerprint = $1`,
		fingerprint,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get cached extraction")
	}

	result, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (s *Postgres) Put(ctx context.Context, fingerprint string, result model.ExtractionResult) error {
	data, err := encode(result)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_cache (fingerprint, records, cached_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (fingerprint) DO UPDATE SET records = $2, cached_at = $3`,
		fingerprint, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: put cached extraction")
}

func (s *Postgres) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM extraction_cache`)
	return eris.Wrap(err, "postgres: clear cache")
}

func (s *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM extraction_cache`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count cache")
}
