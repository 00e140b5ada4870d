package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// BoundOptions configura el wrapper de concurrencia acotada.
type BoundOptions struct {
	MaxConns       int           // operaciones concurrentes máximas contra el backend
	AcquireTimeout time.Duration // espera máxima por un slot libre -> ErrUnavailable
	OpTimeout      time.Duration // deadline por operación -> ErrTimeout
}

// bounded acota la concurrencia contra el backend y aplica deadline por operación.
// Nunca mantiene el slot más allá de la operación.
type bounded struct {
	inner Store
	caps  Capabilities
	sem   *semaphore.Weighted
	opts  BoundOptions
}

// Bound envuelve s con un pool acotado de MaxConns slots.
func Bound(s Store, opts BoundOptions) Store {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 15
	}
	return &bounded{
		inner: s,
		caps:  CapabilitiesOf(s),
		sem:   semaphore.NewWeighted(int64(opts.MaxConns)),
		opts:  opts,
	}
}

func (b *bounded) Capabilities() Capabilities { return b.caps }

// Unwrap devuelve el store envuelto.
func (b *bounded) Unwrap() Store { return b.inner }

// acquire reserva un slot y deriva el contexto de la operación.
func (b *bounded) acquire(ctx context.Context) (context.Context, func(), error) {
	actx := ctx
	var cancelAcquire context.CancelFunc = func() {}
	if b.opts.AcquireTimeout > 0 {
		actx, cancelAcquire = context.WithTimeout(ctx, b.opts.AcquireTimeout)
	}
	err := b.sem.Acquire(actx, 1)
	cancelAcquire()
	if err != nil {
		// Si el caller canceló, propagamos eso; si no, el pool está agotado.
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: pool exhausted (%d conns)", ErrUnavailable, b.opts.MaxConns)
	}

	opCtx, cancelOp := ctx, context.CancelFunc(func() {})
	if b.opts.OpTimeout > 0 {
		opCtx, cancelOp = context.WithTimeout(ctx, b.opts.OpTimeout)
	}
	release := func() {
		cancelOp()
		b.sem.Release(1)
	}
	return opCtx, release, nil
}

func (b *bounded) Get(ctx context.Context, key string) ([]byte, error) {
	opCtx, release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	v, err := b.inner.Get(opCtx, key)
	return v, b.classify(ctx, opCtx, err)
}

func (b *bounded) Set(ctx context.Context, key string, value []byte) error {
	opCtx, release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.classify(ctx, opCtx, b.inner.Set(opCtx, key, value))
}

func (b *bounded) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	cas, ok := b.inner.(CompareAndSwapper)
	if !ok || !b.caps.CompareAndSwap {
		return false, ErrNotSupported
	}
	opCtx, release, err := b.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	swapped, err := cas.CompareAndSwap(opCtx, key, old, value)
	return swapped, b.classify(ctx, opCtx, err)
}

func (b *bounded) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e, ok := b.inner.(Expirer)
	if !ok || !b.caps.TTL {
		return ErrNotSupported
	}
	opCtx, release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.classify(ctx, opCtx, e.SetWithTTL(opCtx, key, value, ttl))
}

func (b *bounded) Ping(ctx context.Context) error {
	p, ok := b.inner.(Pinger)
	if !ok || !b.caps.Ping {
		return nil
	}
	opCtx, release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.classify(ctx, opCtx, p.Ping(opCtx))
}

func (b *bounded) Close() error { return b.inner.Close() }

// classify distingue el deadline propio de la operación (ErrTimeout) de la
// cancelación del caller (se propaga tal cual).
func (b *bounded) classify(parent, opCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(parent.Err(), context.Canceled) && errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return Classify(err)
}
