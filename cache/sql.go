package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ZaguanLabs/phrasebook"
)

// Dialect selects the SQL flavor of a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const sqlTable = "translation_cache"

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS translation_cache (
        source_lang     TEXT   NOT NULL,
        target_lang     TEXT   NOT NULL,
        source_text     TEXT   NOT NULL,
        translated_text TEXT   NOT NULL,
        provider_id     TEXT   NOT NULL,
        created_at      BIGINT NOT NULL,
        PRIMARY KEY (source_lang, target_lang, source_text)
    )`,
	`CREATE INDEX IF NOT EXISTS translation_cache_created_at ON translation_cache (created_at)`,
}

// SQLStore is a cache store in a SQL table, on SQLite or PostgreSQL.
// created_at holds Unix nanoseconds.
type SQLStore struct {
	db        *sql.DB
	sq        sq.StatementBuilderType
	retention time.Duration
	now       func() time.Time
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	o := newOptions(opts)
	builder := sq.StatementBuilder
	if dialect == DialectPostgres {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, sq: builder, retention: o.retention, now: o.now}
}

// OpenSQLStore opens dsn with the dialect's driver and applies the schema.
// For SQLite, dsn is a file path and its directory is created.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, &phrasebook.CacheError{Op: "open", Cause: fmt.Errorf("make db dir: %w", err)}
		}
	case DialectPostgres:
	default:
		return nil, &phrasebook.CacheError{Op: "open", Cause: fmt.Errorf("unknown dialect %q", dialect)}
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "open", Cause: err}
	}
	if dialect == DialectSQLite {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}

	s := NewSQLStore(db, dialect, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the table and index if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqlSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &phrasebook.CacheError{Op: "migrate", Cause: err}
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Get returns the entry for key if it is inside the retention window.
func (s *SQLStore) Get(ctx context.Context, key phrasebook.CacheKey) (phrasebook.CacheEntry, bool, error) {
	q := s.sq.Select("translated_text", "provider_id", "created_at").
		From(sqlTable).
		Where(sq.Eq{
			"source_lang": key.SourceLang,
			"target_lang": key.TargetLang,
			"source_text": key.Text,
		}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return phrasebook.CacheEntry{}, false, &phrasebook.CacheError{Op: "get", Cause: err}
	}

	entry := phrasebook.CacheEntry{Key: key}
	var created int64
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&entry.TranslatedText, &entry.ProviderID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return phrasebook.CacheEntry{}, false, nil
	}
	if err != nil {
		return phrasebook.CacheEntry{}, false, &phrasebook.CacheError{Op: "get", Cause: err}
	}

	entry.CreatedAt = time.Unix(0, created).UTC()
	if entry.Expired(s.now(), s.retention) {
		return phrasebook.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put upserts entry.
func (s *SQLStore) Put(ctx context.Context, entry phrasebook.CacheEntry) error {
	entry, err := stamp(entry, s.now)
	if err != nil {
		return err
	}

	q := s.sq.Insert(sqlTable).
		Columns("source_lang", "target_lang", "source_text", "translated_text", "provider_id", "created_at").
		Values(
			entry.Key.SourceLang,
			entry.Key.TargetLang,
			entry.Key.Text,
			entry.TranslatedText,
			entry.ProviderID,
			entry.CreatedAt.UnixNano(),
		).
		Suffix("ON CONFLICT(source_lang, target_lang, source_text) DO UPDATE SET " +
			"translated_text=excluded.translated_text, provider_id=excluded.provider_id, created_at=excluded.created_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return &phrasebook.CacheError{Op: "put", Cause: err}
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return &phrasebook.CacheError{Op: "put", Cause: err}
	}
	return nil
}

// PurgeExpired deletes rows created at or before now minus the retention window.
func (s *SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	q := s.sq.Delete(sqlTable).Where(sq.LtOrEq{"created_at": now.Add(-s.retention).UnixNano()})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, &phrasebook.CacheError{Op: "purge", Cause: err}
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, &phrasebook.CacheError{Op: "purge", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &phrasebook.CacheError{Op: "purge", Cause: err}
	}
	return int(n), nil
}

// Entries returns all non-expired entries, oldest first.
func (s *SQLStore) Entries(ctx context.Context) ([]phrasebook.CacheEntry, error) {
	q := s.sq.Select("source_lang", "target_lang", "source_text", "translated_text", "provider_id", "created_at").
		From(sqlTable).
		OrderBy("created_at", "source_text")
	if s.retention > 0 {
		q = q.Where(sq.Gt{"created_at": s.now().Add(-s.retention).UnixNano()})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "list", Cause: err}
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, &phrasebook.CacheError{Op: "list", Cause: err}
	}
	defer rows.Close()

	var entries []phrasebook.CacheEntry
	for rows.Next() {
		var (
			e       phrasebook.CacheEntry
			created int64
		)
		if err := rows.Scan(&e.Key.SourceLang, &e.Key.TargetLang, &e.Key.Text, &e.TranslatedText, &e.ProviderID, &created); err != nil {
			return nil, &phrasebook.CacheError{Op: "list", Cause: err}
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &phrasebook.CacheError{Op: "list", Cause: err}
	}
	return entries, nil
}

var (
	_ phrasebook.CacheStore = (*SQLStore)(nil)
	_ Lister                = (*SQLStore)(nil)
)
