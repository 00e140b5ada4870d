package dto

import "github.com/dropDatabas3/keygate/internal/domain/repository"

// KeysResponse GET /keys (admin).
type KeysResponse struct {
	Keys []repository.KeyInfo `json:"keys"`
}

// RotateResponse POST /keys/rotate.
type RotateResponse struct {
	KID string `json:"kid"`
}
