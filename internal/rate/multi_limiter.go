package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// MultiLimiter permite límites distintos por ruta sobre el mismo backend.
type MultiLimiter interface {
	Limiter
	AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Factory crea un limiter para una configuración limit+window.
type Factory func(limit int, window time.Duration) Limiter

// Multi cachea un limiter por configuración limit+window.
type Multi struct {
	factory Factory
	def     struct {
		limit  int
		window time.Duration
	}

	mu       sync.RWMutex
	limiters map[string]Limiter
}

var _ MultiLimiter = (*Multi)(nil)

// NewMulti arma un MultiLimiter; Allow usa defLimit/defWindow.
func NewMulti(factory Factory, defLimit int, defWindow time.Duration) *Multi {
	m := &Multi{factory: factory, limiters: make(map[string]Limiter)}
	m.def.limit = defLimit
	m.def.window = defWindow
	return m
}

// NewRedisMulti limiters compartidos entre instancias vía redis.
func NewRedisMulti(client rdb.UniversalClient, prefix string, defLimit int, defWindow time.Duration) *Multi {
	return NewMulti(func(limit int, window time.Duration) Limiter {
		// el prefijo incluye la config para que dos rutas no compartan contador
		return NewRedisLimiter(client, fmt.Sprintf("%s%d:%s:", prefix, limit, window), limit, window)
	}, defLimit, defWindow)
}

// NewMemoryMulti limiters locales al proceso.
func NewMemoryMulti(defLimit int, defWindow time.Duration) *Multi {
	return NewMulti(func(limit int, window time.Duration) Limiter {
		return NewMemoryLimiter(limit, window)
	}, defLimit, defWindow)
}

func (m *Multi) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	configKey := fmt.Sprintf("%d:%s", limit, window.String())

	m.mu.RLock()
	limiter, exists := m.limiters[configKey]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[configKey]; !exists {
			limiter = m.factory(limit, window)
			m.limiters[configKey] = limiter
		}
		m.mu.Unlock()
	}
	return limiter.Allow(ctx, key)
}

// Allow usa la configuración por defecto.
func (m *Multi) Allow(ctx context.Context, key string) (Result, error) {
	return m.AllowWithLimits(ctx, key, m.def.limit, m.def.window)
}
