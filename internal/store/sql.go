package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// Dialect selects SQL syntax differences between the supported databases.
type Dialect int

const (
	// Postgres uses $n placeholders and row locks (SELECT ... FOR UPDATE).
	Postgres Dialect = iota
	// SQLite uses ? placeholders; writes are serialized on a single connection.
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// maxUpdateAttempts bounds retries when a concurrent insert races Update on a new key.
const maxUpdateAttempts = 5

const (
	qList   = `SELECT key, record FROM auth_records WHERE collection = $1`
	qGet    = `SELECT record FROM auth_records WHERE collection = $1 AND key = $2`
	qPut    = `INSERT INTO auth_records (collection, key, record, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (collection, key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`
	qInsert = `INSERT INTO auth_records (collection, key, record, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (collection, key) DO NOTHING`
	qSet    = `UPDATE auth_records SET record = $1, updated_at = $2 WHERE collection = $3 AND key = $4`
	qDelete = `DELETE FROM auth_records WHERE collection = $1 AND key = $2`
	qTake   = `DELETE FROM auth_records WHERE collection = $1 AND key = $2 RETURNING record`
)

var placeholderRE = regexp.MustCompile(`\$\d+`)

// SQLStore stores each record as one row of auth_records(collection, key, record, updated_at).
// The schema is created by the migrations in internal/db/migrations.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
	nowF    func() time.Time
}

// NewSQLStore returns a store over db. For SQLite the pool is limited to one connection so
// read-modify-write transactions never interleave.
func NewSQLStore(db *sql.DB, dialect Dialect, log *slog.Logger) *SQLStore {
	if log == nil {
		log = slog.Default()
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{db: db, dialect: dialect, log: log, nowF: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) q(query string) string {
	if s.dialect == SQLite {
		return placeholderRE.ReplaceAllString(query, "?")
	}
	return query
}

// List returns every record in the collection.
func (s *SQLStore) List(ctx context.Context, c Collection) (map[string]json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.q(qList), string(c))
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var rec []byte
		if err := rows.Scan(&key, &rec); err != nil {
			return nil, unavailable("list scan", err)
		}
		out[key] = json.RawMessage(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

// Get returns the record for key.
func (s *SQLStore) Get(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	var rec []byte
	err := s.db.QueryRowContext(ctx, s.q(qGet), string(c), key).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return json.RawMessage(rec), nil
}

// Put upserts the record for key.
func (s *SQLStore) Put(ctx context.Context, c Collection, key string, record json.RawMessage) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if !json.Valid(record) {
		return fmt.Errorf("store: put %s[%s]: record is not valid JSON", c, key)
	}
	if _, err := s.db.ExecContext(ctx, s.q(qPut), string(c), key, string(record), s.nowF()); err != nil {
		return unavailable("put", err)
	}
	s.log.Debug("store put", slog.String("collection", string(c)), slog.String("key", key))
	return nil
}

// Delete removes the record for key.
func (s *SQLStore) Delete(ctx context.Context, c Collection, key string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q(qDelete), string(c), key); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Take deletes the record for key and returns it in a single statement.
func (s *SQLStore) Take(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	var rec []byte
	err := s.db.QueryRowContext(ctx, s.q(qTake), string(c), key).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("take", err)
	}
	return json.RawMessage(rec), nil
}

// Update runs fn inside a transaction holding the row lock for key. fn may run more than
// once if a concurrent writer creates the key first, so it must not have side effects.
func (s *SQLStore) Update(ctx context.Context, c Collection, key string, fn UpdateFunc) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		retry, err := s.updateOnce(ctx, c, key, fn)
		if err != nil || !retry {
			return err
		}
		s.log.Debug("store update retry", slog.String("collection", string(c)), slog.String("key", key), slog.Int("attempt", attempt+1))
	}
	return unavailable("update", fmt.Errorf("%s[%s]: too much contention", c, key))
}

func (s *SQLStore) updateOnce(ctx context.Context, c Collection, key string, fn UpdateFunc) (retry bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := qGet
	if s.dialect == Postgres {
		query += " FOR UPDATE"
	}
	var old []byte
	exists := true
	if err := tx.QueryRowContext(ctx, s.q(query), string(c), key).Scan(&old); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, unavailable("update read", err)
		}
		exists = false
	}

	next, ferr := fn(json.RawMessage(old), exists)
	switch {
	case errors.Is(ferr, ErrDeleteRecord):
		if !exists {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, s.q(qDelete), string(c), key); err != nil {
			return false, unavailable("update delete", err)
		}
	case ferr != nil:
		return false, ferr
	default:
		if !json.Valid(next) {
			return false, fmt.Errorf("store: update %s[%s]: record is not valid JSON", c, key)
		}
		now := s.nowF()
		if exists {
			if _, err := tx.ExecContext(ctx, s.q(qSet), string(next), now, string(c), key); err != nil {
				return false, unavailable("update write", err)
			}
		} else {
			res, err := tx.ExecContext(ctx, s.q(qInsert), string(c), key, string(next), now)
			if err != nil {
				return false, unavailable("update insert", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return true, nil
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return false, unavailable("commit", err)
	}
	return false, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
