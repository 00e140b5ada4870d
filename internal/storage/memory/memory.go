// Package memory implementa el driver "memory" sobre go-cache.
// Soporta CAS y TTL. Pensado para dev y tests: no persiste nada.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/keygate/internal/storage"
	gocache "github.com/patrickmn/go-cache"
)

func init() {
	storage.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "memory" }

func (driver) Open(_ context.Context, _ storage.Config) (storage.Store, error) {
	return New(), nil
}

// Mem es un Store en memoria. El mutex serializa las escrituras para que
// CompareAndSwap sea atómico respecto de Set.
type Mem struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// New crea un store vacío sin expiración por defecto.
func New() *Mem {
	return &Mem{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Mem) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.c.Get(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	b, _ := v.([]byte)
	return bytes.Clone(b), nil
}

func (m *Mem) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.c.Set(key, bytes.Clone(value), gocache.NoExpiration)
	m.mu.Unlock()
	return nil
}

func (m *Mem) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.c.Set(key, bytes.Clone(value), ttl)
	m.mu.Unlock()
	return nil
}

func (m *Mem) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, found := m.c.Get(key)
	if old == nil {
		if found {
			return false, nil
		}
	} else {
		b, _ := cur.([]byte)
		if !found || !bytes.Equal(b, old) {
			return false, nil
		}
	}
	m.c.Set(key, bytes.Clone(value), gocache.NoExpiration)
	return true, nil
}

func (m *Mem) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Mem) Close() error {
	m.c.Flush()
	return nil
}
