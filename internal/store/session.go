package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/storage"
)

// SessionStoreOptions configura el SessionStore.
type SessionStoreOptions struct {
	// Retention: cuánto se conserva un registro después de expirar, en
	// backends con TTL. 0 = sin TTL.
	Retention time.Duration
	Now       func() time.Time
}

// SessionStore implementa repository.SessionRepository sobre storage.Store.
type SessionStore struct {
	s         storage.Store
	retention time.Duration
	now       func() time.Time
}

var _ repository.SessionRepository = (*SessionStore)(nil)

func NewSessionStore(s storage.Store, opts SessionStoreOptions) *SessionStore {
	st := &SessionStore{s: s, retention: opts.Retention, now: opts.Now}
	if st.now == nil {
		st.now = time.Now
	}
	return st
}

// ttlFor calcula el TTL de backend para un registro: ExpiresAt + retention.
func (st *SessionStore) ttlFor(s *repository.Session) time.Duration {
	if st.retention <= 0 {
		return 0
	}
	ttl := s.ExpiresAt.Add(st.retention).Sub(st.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (st *SessionStore) write(ctx context.Context, s *repository.Session) error {
	raw, err := encodeSession(s)
	if err != nil {
		return err
	}
	return storage.SetWithTTL(ctx, st.s, sessionKey(s.ID), raw, st.ttlFor(s))
}

// Create persiste el registro y después lo agrega al índice de la identidad.
// El token no debe entregarse hasta que Create retorne sin error.
func (st *SessionStore) Create(ctx context.Context, s *repository.Session) error {
	if s == nil || s.ID == "" || s.IdentityID == "" {
		return repository.ErrInvalidInput
	}
	if err := st.write(ctx, s); err != nil {
		return err
	}
	return appendIndex(ctx, st.s, sessionIndexKey(s.IdentityID), s.ID, st.alive)
}

// retained reporta si el registro sigue dentro de su ventana de retención.
// Retention 0 conserva todo.
func (st *SessionStore) retained(s *repository.Session) bool {
	return st.retention <= 0 || st.now().Before(s.ExpiresAt.Add(st.retention))
}

// alive es el memberFilter del índice de sesiones: muerto es un registro
// que el backend ya recolectó o que pasó su retención. Los corruptos se
// conservan.
func (st *SessionStore) alive(ctx context.Context, id string) (bool, error) {
	s, err := st.Get(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case errors.Is(err, storage.ErrCorrupt):
		return true, nil
	case err != nil:
		return false, err
	}
	return st.retained(s), nil
}

// Get obtiene una sesión por ID.
func (st *SessionStore) Get(ctx context.Context, id string) (*repository.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, repository.ErrNotFound
	}
	raw, err := st.s.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// Revoke marca la sesión como revocada. changed es true sólo para la
// llamada que efectivamente puso la marca: con CAS exactamente una de
// varias concurrentes; sin CAS puede serlo más de una. Revocar una sesión ya
// revocada no cambia nada (RevokedAt conserva el primer valor).
func (st *SessionStore) Revoke(ctx context.Context, id string, at time.Time) (*repository.Session, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, repository.ErrNotFound
	}
	caps := storage.CapabilitiesOf(st.s)
	at = at.UTC()

	type outcome struct {
		s       *repository.Session
		changed bool
	}
	res, err := retryCAS(ctx, sessionKey(id), func() (outcome, error) {
		raw, err := st.s.Get(ctx, sessionKey(id))
		if err != nil {
			return outcome{}, err
		}
		s, err := decodeSession(raw)
		if err != nil {
			return outcome{}, err
		}
		if s.Revoked {
			return outcome{s: s}, nil
		}
		s.Revoked = true
		s.RevokedAt = &at

		if !caps.CompareAndSwap {
			if err := st.write(ctx, s); err != nil {
				return outcome{}, err
			}
			return outcome{s: s, changed: true}, nil
		}
		next, err := encodeSession(s)
		if err != nil {
			return outcome{}, err
		}
		swapped, _, err := storage.CompareAndSwap(ctx, st.s, sessionKey(id), raw, next)
		if err != nil {
			return outcome{}, err
		}
		if !swapped {
			return outcome{}, errLostRace
		}
		// el CAS no conserva el TTL: se reescribe el mismo valor con TTL.
		// Nadie más muta un registro ya revocado.
		if caps.TTL && st.ttlFor(s) > 0 {
			if err := st.write(ctx, s); err != nil {
				return outcome{}, err
			}
		}
		return outcome{s: s, changed: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.s, res.changed, nil
}

// ListByIdentity lista las sesiones indexadas de la identidad que siguen
// dentro de su retención. Las que el backend ya recolectó y las corruptas se
// omiten; si hay miembros muertos el índice se compacta.
func (st *SessionStore) ListByIdentity(ctx context.Context, identityID string) ([]repository.Session, error) {
	key := sessionIndexKey(identityID)
	ids, raw, err := readIndex(ctx, st.s, key)
	if err != nil {
		return nil, err
	}
	out := make([]repository.Session, 0, len(ids))
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		s, err := st.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if errors.Is(err, storage.ErrCorrupt) {
			logger.From(ctx).Warn("skipping corrupt session record", logger.SessionID(id), logger.Err(err))
			kept = append(kept, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !st.retained(s) {
			continue
		}
		kept = append(kept, id)
		out = append(out, *s)
	}
	if len(kept) < len(ids) {
		compactIndex(ctx, st.s, key, raw, kept)
	}
	return out, nil
}
