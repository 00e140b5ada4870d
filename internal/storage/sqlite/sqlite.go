// Package sqlite implementa el driver "sqlite" sobre modernc.org/sqlite
// (sin cgo). Mismo esquema que postgres; soporta CAS, TTL y ping.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropDatabas3/keygate/internal/storage"
	_ "modernc.org/sqlite"
)

func init() {
	storage.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "sqlite" }

func (driver) Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	return Open(ctx, cfg.SQLitePath)
}

const schema = `
CREATE TABLE IF NOT EXISTS keygate_kv (
	k          TEXT PRIMARY KEY,
	v          BLOB NOT NULL,
	expires_at INTEGER NULL
)`

// Store implementa storage.Store sobre un archivo SQLite.
// expires_at se guarda en milisegundos UTC.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open abre el archivo en path y aplica el esquema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) nowMillis() int64 { return s.now().UTC().UnixMilli() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT v FROM keygate_kv WHERE k = ? AND (expires_at IS NULL OR expires_at > ?)`
	var v []byte
	err := s.db.QueryRowContext(ctx, query, key, s.nowMillis()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO keygate_kv (k, v, expires_at) VALUES (?, ?, NULL)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = NULL
	`
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const query = `
		INSERT INTO keygate_kv (k, v, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, s.now().Add(ttl).UTC().UnixMilli())
	return err
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	now := s.nowMillis()
	var (
		res sql.Result
		err error
	)
	if old == nil {
		const insert = `
			INSERT INTO keygate_kv (k, v, expires_at) VALUES (?, ?, NULL)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = NULL
			WHERE keygate_kv.expires_at IS NOT NULL AND keygate_kv.expires_at <= ?
		`
		res, err = s.db.ExecContext(ctx, insert, key, value, now)
	} else {
		const update = `
			UPDATE keygate_kv SET v = ?
			WHERE k = ? AND v = ? AND (expires_at IS NULL OR expires_at > ?)
		`
		res, err = s.db.ExecContext(ctx, update, value, key, old, now)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
