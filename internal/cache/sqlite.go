package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/entity-extractor/internal/model"
)

// SQLite persists the cache in a local database file using modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	fingerprint TEXT PRIMARY KEY,
	records     TEXT NOT NULL,
	cached_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, fingerprint string) (model.ExtractionResult, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM extraction_cache WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached extraction")
	}

	result, err := decode([]byte(data))
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (s *SQLite) Put(ctx context.Context, fingerprint string, result model.ExtractionResult) error {
	data, err := encode(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_cache (fingerprint, records, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT (fingerprint) DO UPDATE SET records = excluded.records, cached_at = excluded.cached_at`,
		fingerprint, string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put cached extraction")
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM extraction_cache`)
	return eris.Wrap(err, "sqlite: clear cache")
}

func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extraction_cache`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count cache")
}
