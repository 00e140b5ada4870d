package repository

import (
	"context"
	"time"
)

// SessionState es el estado computado de una sesión.
// Active no se persiste: se deriva de revocación y ventana temporal.
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionRevoked SessionState = "revoked"
)

// Session representa una sesión persistida.
// El token firmado no se guarda; sólo su fingerprint SHA-256.
type Session struct {
	ID               string
	IdentityID       string
	KID              string
	TokenFingerprint string

	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// State calcula el estado de la sesión en el instante now.
// Expired tiene precedencia: una sesión expirada nunca vuelve a ser válida.
func (s *Session) State(now time.Time) SessionState {
	if !now.Before(s.ExpiresAt) {
		return SessionExpired
	}
	if s.Revoked {
		return SessionRevoked
	}
	return SessionActive
}

// SessionRepository define operaciones sobre sesiones.
type SessionRepository interface {
	// Create persiste una sesión nueva y la agrega al índice de la identidad.
	Create(ctx context.Context, s *Session) error

	// Get obtiene una sesión por ID.
	Get(ctx context.Context, id string) (*Session, error)

	// Revoke marca la sesión como revocada. Idempotente; changed es true
	// sólo para la llamada que puso la marca.
	Revoke(ctx context.Context, id string, at time.Time) (s *Session, changed bool, err error)

	// ListByIdentity lista las sesiones conocidas de una identidad.
	ListByIdentity(ctx context.Context, identityID string) ([]Session, error)
}
