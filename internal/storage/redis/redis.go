// Package redis implementa el driver "redis" sobre go-redis.
// Soporta CAS (script Lua atómico), TTL y ping.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/keygate/internal/storage"
	rdb "github.com/redis/go-redis/v9"
)

func init() {
	storage.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "redis" }

func (driver) Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis: addr required")
	}
	c := rdb.NewClient(&rdb.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.MaxConns,
		PoolTimeout: cfg.AcquireTimeout,
	})

	// Verificar conexión
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return NewWithClient(c, cfg.Redis.Prefix), nil
}

// casScript escribe ARGV[3] sólo si el valor actual coincide.
// ARGV[1] = "absent" exige que la key no exista; "match" compara contra ARGV[2].
var casScript = rdb.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == 'absent' then
  if cur then return 0 end
else
  if cur ~= ARGV[2] then return 0 end
end
redis.call('SET', KEYS[1], ARGV[3])
return 1
`)

// Store implementa storage.Store sobre un cliente Redis.
type Store struct {
	client *rdb.Client
	prefix string
}

// NewWithClient envuelve un cliente ya configurado (tests, miniredis, etc).
func NewWithClient(c *rdb.Client, prefix string) *Store {
	return &Store{client: c, prefix: prefix}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	mode := "match"
	if old == nil {
		mode, old = "absent", []byte{}
	}
	n, err := casScript.Run(ctx, s.client, []string{s.key(key)}, mode, old, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
