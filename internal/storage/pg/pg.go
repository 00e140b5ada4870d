// Package pg implementa el driver "postgres" sobre pgxpool: una tabla
// key/value con expiración opcional. Soporta CAS, TTL y ping.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	storage.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "postgres" }

func (driver) Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres: dsn required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS keygate_kv (
	k          TEXT PRIMARY KEY,
	v          BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NULL
)`

// Store implementa storage.Store sobre la tabla keygate_kv.
type Store struct {
	pool *pgxpool.Pool
}

// NewWithPool usa un pool existente. El caller es dueño de la migración.
func NewWithPool(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `
		SELECT v FROM keygate_kv
		WHERE k = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`
	var v []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO keygate_kv (k, v, expires_at) VALUES ($1, $2, NULL)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, expires_at = NULL
	`
	_, err := s.pool.Exec(ctx, query, key, value)
	return err
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const query = `
		INSERT INTO keygate_kv (k, v, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, expires_at = EXCLUDED.expires_at
	`
	_, err := s.pool.Exec(ctx, query, key, value, time.Now().Add(ttl))
	return err
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if old == nil {
		// Una fila expirada cuenta como ausente.
		const insert = `
			INSERT INTO keygate_kv (k, v, expires_at) VALUES ($1, $2, NULL)
			ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, expires_at = NULL
			WHERE keygate_kv.expires_at IS NOT NULL AND keygate_kv.expires_at <= NOW()
		`
		tag, err := s.pool.Exec(ctx, insert, key, value)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() == 1, nil
	}

	const update = `
		UPDATE keygate_kv SET v = $3
		WHERE k = $1 AND v = $2 AND (expires_at IS NULL OR expires_at > NOW())
	`
	tag, err := s.pool.Exec(ctx, update, key, old, value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
