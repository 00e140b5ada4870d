// Package dto define los mensajes JSON de ambas superficies.
package dto

import (
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// RegisterRequest POST /identities (public).
type RegisterRequest struct {
	Attributes map[string]string `json:"attributes" validate:"required,min=1,max=16,dive,keys,min=1,max=64,endkeys,max=256"`
	Password   string            `json:"password" validate:"required,max=256"`
}

// CreateIdentityRequest POST /identities (admin). Password opcional.
type CreateIdentityRequest struct {
	Attributes map[string]string `json:"attributes" validate:"required,min=1,max=16,dive,keys,min=1,max=64,endkeys,max=256"`
	Password   string            `json:"password,omitempty" validate:"max=256"`
}

// UpdateStatusRequest PUT /identities/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled deleted"`
}

// IdentityResponse nunca incluye el hash de credencial.
type IdentityResponse struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func NewIdentityResponse(i *repository.Identity) IdentityResponse {
	return IdentityResponse{
		ID:         i.ID,
		Attributes: i.Attributes,
		Status:     string(i.Status),
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

// IdentityListResponse GET /identities (admin).
type IdentityListResponse struct {
	Items  []IdentityResponse `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// StatusChangeResponse PUT /identities/{id}/status.
type StatusChangeResponse struct {
	Identity        IdentityResponse `json:"identity"`
	SessionsRevoked int              `json:"sessions_revoked"`
}
