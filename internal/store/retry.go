package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dropDatabas3/keygate/internal/storage"
)

const (
	// maxCASAttempts acota los reintentos cuando otro escritor gana el CAS.
	maxCASAttempts = 64
	maxCASElapsed  = 3 * time.Second
)

// errLostRace lo devuelve un intento cuyo CAS encontró otro valor.
var errLostRace = errors.New("compare-and-swap lost")

func casBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.RandomizationFactor = 0.5
	return b
}

// retryCAS repite attempt mientras pierda la carrera (errLostRace), con
// backoff exponencial con jitter. Cualquier otro error corta en el acto.
// Agotado el presupuesto devuelve ErrUnavailable sobre key.
func retryCAS[T any](ctx context.Context, key string, attempt func() (T, error)) (T, error) {
	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := attempt()
		if err != nil && !errors.Is(err, errLostRace) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(casBackOff()),
		backoff.WithMaxTries(maxCASAttempts),
		backoff.WithMaxElapsedTime(maxCASElapsed),
	)
	if err == nil {
		return res, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if errors.Is(err, errLostRace) {
		var zero T
		return zero, fmt.Errorf("%w: %s contended", storage.ErrUnavailable, key)
	}
	return res, err
}
