package repository

import (
	"context"
	"time"
)

// IdentityStatus es el estado mutable de una identidad.
// Las transiciones son monótonas hacia deleted (no hay resurrección).
type IdentityStatus string

const (
	StatusActive   IdentityStatus = "active"
	StatusDisabled IdentityStatus = "disabled"
	StatusDeleted  IdentityStatus = "deleted"
)

// IsValid retorna true si el status es uno de los conocidos.
func (s IdentityStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reporta si from -> to es una transición permitida.
//   - mismo status: permitido (idempotente)
//   - active <-> disabled: permitido
//   - cualquiera -> deleted: permitido
//   - deleted -> otro: InvalidTransition
func CanTransition(from, to IdentityStatus) bool {
	if !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	if from == StatusDeleted {
		return false
	}
	return true
}

// Identity es un principal durable con identificador único y atributos.
type Identity struct {
	ID         string
	Attributes map[string]string
	Status     IdentityStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// CredentialHash es el hash argon2id (PHC) del password, si la identidad tiene uno.
	// Nunca se expone hacia afuera del engine.
	CredentialHash string
}

// Active reporta si la identidad puede usar sesiones.
func (i *Identity) Active() bool { return i != nil && i.Status == StatusActive }

// Clone devuelve una copia profunda (attributes incluidos).
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	cp.Attributes = make(map[string]string, len(i.Attributes))
	for k, v := range i.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}

// CreateIdentityInput contiene los datos para crear una identidad.
type CreateIdentityInput struct {
	Attributes     map[string]string
	CredentialHash string
}

// ListIdentitiesFilter opciones para listar identidades.
type ListIdentitiesFilter struct {
	Status *IdentityStatus
	Limit  int // Default 50, max 500
	Offset int
}

// IdentityRepository define operaciones sobre identidades.
type IdentityRepository interface {
	// Create crea una identidad activa.
	// Retorna ErrConflict si la natural key ya está ligada a otra identidad.
	Create(ctx context.Context, input CreateIdentityInput) (*Identity, error)

	// Get busca una identidad por ID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*Identity, error)

	// UpdateStatus cambia el status. Retorna ErrNotFound o ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, status IdentityStatus) (*Identity, error)

	// FindByNaturalKey busca por el atributo natural (ej: email).
	FindByNaturalKey(ctx context.Context, value string) (*Identity, error)

	// List enumera identidades (sólo capability admin).
	List(ctx context.Context, filter ListIdentitiesFilter) ([]Identity, error)
}
