package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
)

// instrumented registra latencia y errores por operación en Prometheus.
type instrumented struct {
	inner   Store
	caps    Capabilities
	backend string
}

// Instrument envuelve s con métricas etiquetadas con el nombre del backend.
func Instrument(s Store, backend string) Store {
	return &instrumented{inner: s, caps: CapabilitiesOf(s), backend: backend}
}

func (m *instrumented) Capabilities() Capabilities { return m.caps }

// Unwrap devuelve el store envuelto.
func (m *instrumented) Unwrap() Store { return m.inner }

func (m *instrumented) observe(ctx context.Context, op string, start time.Time, err error) {
	dur := time.Since(start)
	metrics.StorageOpDuration.WithLabelValues(m.backend, op).Observe(dur.Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.StorageOpErrors.WithLabelValues(m.backend, op, ErrorKind(err)).Inc()
		logger.From(ctx).Debug("storage op failed",
			logger.Backend(m.backend), logger.Op(op), logger.Duration(dur), logger.Err(err))
	}
}

func (m *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := m.inner.Get(ctx, key)
	m.observe(ctx, "get", start, err)
	return v, err
}

func (m *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := m.inner.Set(ctx, key, value)
	m.observe(ctx, "set", start, err)
	return err
}

func (m *instrumented) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	cas, ok := m.inner.(CompareAndSwapper)
	if !ok || !m.caps.CompareAndSwap {
		return false, ErrNotSupported
	}
	start := time.Now()
	swapped, err := cas.CompareAndSwap(ctx, key, old, value)
	m.observe(ctx, "cas", start, err)
	return swapped, err
}

func (m *instrumented) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e, ok := m.inner.(Expirer)
	if !ok || !m.caps.TTL {
		return ErrNotSupported
	}
	start := time.Now()
	err := e.SetWithTTL(ctx, key, value, ttl)
	m.observe(ctx, "set_ttl", start, err)
	return err
}

func (m *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := Ping(ctx, m.inner)
	m.observe(ctx, "ping", start, err)
	return err
}

func (m *instrumented) Close() error { return m.inner.Close() }

// ErrorKind devuelve la etiqueta corta del kind de error (para métricas y logs).
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
