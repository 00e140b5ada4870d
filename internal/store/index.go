package store

import (
	"context"
	"errors"
	"slices"

	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/storage"
)

// compactAt: desde este tamaño appendIndex poda los miembros muertos antes
// de escribir, así el índice no crece con registros que el backend ya
// recolectó.
const compactAt = 64

// memberFilter decide si un miembro del índice sigue vivo.
type memberFilter func(ctx context.Context, member string) (bool, error)

// readIndex devuelve los miembros y los bytes crudos (nil si la key no existe).
func readIndex(ctx context.Context, s storage.Store, key string) ([]string, []byte, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	members, err := decodeIndex(raw)
	if err != nil {
		return nil, nil, err
	}
	return members, raw, nil
}

// pruner memoiza el veredicto de alive entre reintentos de CAS: un miembro
// muerto no revive.
type pruner struct {
	alive memberFilter
	seen  map[string]bool
}

func newPruner(alive memberFilter) *pruner {
	return &pruner{alive: alive, seen: make(map[string]bool)}
}

func (p *pruner) prune(ctx context.Context, members []string) ([]string, error) {
	if p.alive == nil {
		return members, nil
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		ok, cached := p.seen[m]
		if !cached {
			var err error
			if ok, err = p.alive(ctx, m); err != nil {
				return nil, err
			}
			p.seen[m] = ok
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// appendIndex agrega member a la lista de key si no está. Con alive != nil
// y la lista en compactAt o más, poda los muertos en la misma escritura.
//
// Con CAS es exacto: read, append, CAS contra los bytes leídos y reintento
// con backoff si otro escritor ganó. Sin CAS es read-modify-write con
// re-lectura de confirmación; dos appends concurrentes pueden pisarse y el
// perdedor reintenta, pero un tercero puede volver a pisarlo. Best-effort.
func appendIndex(ctx context.Context, s storage.Store, key, member string, alive memberFilter) error {
	caps := storage.CapabilitiesOf(s)
	p := newPruner(alive)

	_, err := retryCAS(ctx, key, func() (struct{}, error) {
		members, raw, err := readIndex(ctx, s, key)
		if err != nil {
			return struct{}{}, err
		}
		if slices.Contains(members, member) {
			return struct{}{}, nil
		}
		if len(members) >= compactAt {
			if members, err = p.prune(ctx, members); err != nil {
				return struct{}{}, err
			}
		}
		next, err := encodeIndex(append(members, member))
		if err != nil {
			return struct{}{}, err
		}

		if caps.CompareAndSwap {
			swapped, _, err := storage.CompareAndSwap(ctx, s, key, raw, next)
			if err != nil {
				return struct{}{}, err
			}
			if !swapped {
				return struct{}{}, errLostRace
			}
			return struct{}{}, nil
		}

		if err := s.Set(ctx, key, next); err != nil {
			return struct{}{}, err
		}
		check, _, err := readIndex(ctx, s, key)
		if err != nil {
			return struct{}{}, err
		}
		if !slices.Contains(check, member) {
			return struct{}{}, errLostRace
		}
		return struct{}{}, nil
	})
	return err
}

// compactIndex reescribe key con kept si nadie lo tocó desde que se leyó raw.
// Sólo con CAS: sin él podría borrar un append concurrente. Perder la
// carrera no es error, el próximo lector vuelve a intentar.
func compactIndex(ctx context.Context, s storage.Store, key string, raw []byte, kept []string) {
	if raw == nil || !storage.CapabilitiesOf(s).CompareAndSwap {
		return
	}
	next, err := encodeIndex(kept)
	if err != nil {
		return
	}
	if _, _, err := storage.CompareAndSwap(ctx, s, key, raw, next); err != nil {
		logger.From(ctx).Debug("index compaction skipped", logger.String("index", key), logger.Err(err))
	}
}
