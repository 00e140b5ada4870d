package storagetest

import (
	"context"
	"time"

	"github.com/dropDatabas3/keygate/internal/storage"
)

// latency agrega una demora fija antes de cada operación del store envuelto.
// Sirve para abrir la ventana entre read y CAS como en un backend remoto.
type latency struct {
	inner storage.Store
	caps  storage.Capabilities
	delay time.Duration
}

// WithLatency envuelve s. Anuncia las mismas capacidades que s.
func WithLatency(s storage.Store, delay time.Duration) storage.Store {
	return &latency{inner: s, caps: storage.CapabilitiesOf(s), delay: delay}
}

func (l *latency) wait(ctx context.Context) error {
	t := time.NewTimer(l.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *latency) Capabilities() storage.Capabilities { return l.caps }

func (l *latency) Get(ctx context.Context, key string) ([]byte, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Get(ctx, key)
}

func (l *latency) Set(ctx context.Context, key string, value []byte) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.inner.Set(ctx, key, value)
}

func (l *latency) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if err := l.wait(ctx); err != nil {
		return false, err
	}
	swapped, _, err := storage.CompareAndSwap(ctx, l.inner, key, old, value)
	return swapped, err
}

func (l *latency) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return storage.SetWithTTL(ctx, l.inner, key, value, ttl)
}

func (l *latency) Ping(ctx context.Context) error { return storage.Ping(ctx, l.inner) }

func (l *latency) Close() error { return l.inner.Close() }
