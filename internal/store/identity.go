package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/google/uuid"
)

const (
	defaultNaturalKey = "email"
	defaultListLimit  = 50
	maxListLimit      = 500
)

// IdentityStoreOptions configura el IdentityStore.
type IdentityStoreOptions struct {
	// NaturalKey es el atributo único de lookup. Default "email".
	NaturalKey string
	// Now reloj inyectable. Default time.Now.
	Now func() time.Time
}

// IdentityStore implementa repository.IdentityRepository sobre storage.Store.
// No cachea nada en memoria: cada lectura va al backend.
type IdentityStore struct {
	s          storage.Store
	naturalKey string
	now        func() time.Time
}

var _ repository.IdentityRepository = (*IdentityStore)(nil)

func NewIdentityStore(s storage.Store, opts IdentityStoreOptions) *IdentityStore {
	st := &IdentityStore{s: s, naturalKey: opts.NaturalKey, now: opts.Now}
	if st.naturalKey == "" {
		st.naturalKey = defaultNaturalKey
	}
	if st.now == nil {
		st.now = time.Now
	}
	return st
}

// NaturalKey devuelve el nombre del atributo natural.
func (st *IdentityStore) NaturalKey() string { return st.naturalKey }

// Create crea una identidad activa.
//
// Orden de escrituras: registro de identidad, índice de enumeración, claim
// de la natural key. El claim es la última escritura y la que hace visible la
// identidad; si la llamada se abandona o falla antes, el registro y su
// entrada en el índice quedan huérfanos, List los descarta y el resultado es
// indistinguible de "no intentado".
func (st *IdentityStore) Create(ctx context.Context, in repository.CreateIdentityInput) (*repository.Identity, error) {
	attrs := make(map[string]string, len(in.Attributes))
	for k, v := range in.Attributes {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("%w: empty attribute name", repository.ErrInvalidInput)
		}
		attrs[k] = v
	}
	nkValue := NormalizeNaturalKey(attrs[st.naturalKey])
	if nkValue == "" {
		return nil, fmt.Errorf("%w: attribute %q is required", repository.ErrInvalidInput, st.naturalKey)
	}
	attrs[st.naturalKey] = nkValue
	nk := naturalKeyKey(st.naturalKey, nkValue)

	// 1) check barato antes de escribir nada
	if _, err := st.s.Get(ctx, nk); err == nil {
		metrics.IdentityConflicts.Inc()
		return nil, fmt.Errorf("%w: %s already registered", repository.ErrConflict, st.naturalKey)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := st.now().UTC()
	ident := &repository.Identity{
		ID:             uuid.NewString(),
		Attributes:     attrs,
		Status:         repository.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		CredentialHash: in.CredentialHash,
	}
	raw, err := encodeIdentity(ident)
	if err != nil {
		return nil, err
	}

	// 2) registro
	if err := st.s.Set(ctx, identityKey(ident.ID), raw); err != nil {
		return nil, err
	}

	// 3) enumeración
	if err := appendIndex(ctx, st.s, keyIdentityIndex, ident.ID, nil); err != nil {
		return nil, err
	}

	// 4) claim de la natural key
	won, err := st.claimNaturalKey(ctx, nk, ident.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		metrics.IdentityConflicts.Inc()
		st.tombstone(ctx, ident)
		return nil, fmt.Errorf("%w: %s already registered", repository.ErrConflict, st.naturalKey)
	}

	logger.From(ctx).Debug("identity created", logger.IdentityID(ident.ID))
	return ident.Clone(), nil
}

// claimNaturalKey liga nk -> id. Con CAS es un "set if absent" exacto. Sin
// CAS escribe y re-lee: el que no se lee a sí mismo pierde. Best-effort.
func (st *IdentityStore) claimNaturalKey(ctx context.Context, nk, id string) (bool, error) {
	swapped, supported, err := storage.CompareAndSwap(ctx, st.s, nk, nil, []byte(id))
	if err != nil {
		return false, err
	}
	if supported {
		return swapped, nil
	}

	if err := st.s.Set(ctx, nk, []byte(id)); err != nil {
		return false, err
	}
	got, err := st.s.Get(ctx, nk)
	if err != nil {
		return false, err
	}
	return string(got) == id, nil
}

// tombstone marca como deleted el registro del perdedor de una carrera.
// Es best-effort: el registro ya es inalcanzable.
func (st *IdentityStore) tombstone(ctx context.Context, ident *repository.Identity) {
	ident.Status = repository.StatusDeleted
	raw, err := encodeIdentity(ident)
	if err != nil {
		return
	}
	if err := st.s.Set(ctx, identityKey(ident.ID), raw); err != nil {
		logger.From(ctx).Warn("identity tombstone failed", logger.IdentityID(ident.ID), logger.Err(err))
	}
}

// Get busca una identidad por ID.
func (st *IdentityStore) Get(ctx context.Context, id string) (*repository.Identity, error) {
	ident, _, err := st.read(ctx, id)
	return ident, err
}

func (st *IdentityStore) read(ctx context.Context, id string) (*repository.Identity, []byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, repository.ErrNotFound
	}
	raw, err := st.s.Get(ctx, identityKey(id))
	if err != nil {
		return nil, nil, err
	}
	ident, err := decodeIdentity(raw)
	if err != nil {
		return nil, nil, err
	}
	return ident, raw, nil
}

// UpdateStatus cambia el status respetando la monotonía hacia deleted.
// Con CAS la transición se valida contra el valor que efectivamente se
// reemplaza; sin CAS un cambio concurrente puede pisarse.
func (st *IdentityStore) UpdateStatus(ctx context.Context, id string, status repository.IdentityStatus) (*repository.Identity, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidInput, status)
	}
	caps := storage.CapabilitiesOf(st.s)

	return retryCAS(ctx, identityKey(id), func() (*repository.Identity, error) {
		ident, raw, err := st.read(ctx, id)
		if err != nil {
			return nil, err
		}
		if !repository.CanTransition(ident.Status, status) {
			return nil, fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, ident.Status, status)
		}
		if ident.Status == status {
			return ident, nil
		}

		ident.Status = status
		ident.UpdatedAt = st.now().UTC()
		next, err := encodeIdentity(ident)
		if err != nil {
			return nil, err
		}

		if !caps.CompareAndSwap {
			if err := st.s.Set(ctx, identityKey(id), next); err != nil {
				return nil, err
			}
			return ident, nil
		}
		swapped, _, err := storage.CompareAndSwap(ctx, st.s, identityKey(id), raw, next)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, errLostRace
		}
		return ident, nil
	})
}

// FindByNaturalKey resuelve la natural key al id y lee la identidad.
func (st *IdentityStore) FindByNaturalKey(ctx context.Context, value string) (*repository.Identity, error) {
	if NormalizeNaturalKey(value) == "" {
		return nil, repository.ErrNotFound
	}
	raw, err := st.s.Get(ctx, naturalKeyKey(st.naturalKey, value))
	if err != nil {
		return nil, err
	}
	return st.Get(ctx, string(raw))
}

// List enumera identidades en orden de creación. Se saltean las entradas
// cuyo registro no existe y las que no son dueñas de su natural key
// (perdedores de una carrera o Create abandonados antes del claim).
func (st *IdentityStore) List(ctx context.Context, f repository.ListIdentitiesFilter) ([]repository.Identity, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	ids, _, err := readIndex(ctx, st.s, keyIdentityIndex)
	if err != nil {
		return nil, err
	}

	out := make([]repository.Identity, 0, min(limit, len(ids)))
	skipped := 0
	for _, id := range ids {
		ident, err := st.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.Status != nil && ident.Status != *f.Status {
			continue
		}
		owned, err := st.ownsNaturalKey(ctx, ident)
		if err != nil {
			return nil, err
		}
		if !owned {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *ident)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ownsNaturalKey reporta si la natural key de ident apunta a ident.
func (st *IdentityStore) ownsNaturalKey(ctx context.Context, ident *repository.Identity) (bool, error) {
	raw, err := st.s.Get(ctx, naturalKeyKey(st.naturalKey, ident.Attributes[st.naturalKey]))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(raw) == ident.ID, nil
}
