package repository

import (
	"crypto/ed25519"
	"time"
)

// KeyStatus indica el estado de una clave de firma.
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusRetiring KeyStatus = "retiring"
)

// SigningKey representa un par Ed25519 en memoria.
// Nunca se persiste: el keystore lo mantiene durante la vida del proceso.
type SigningKey struct {
	ID          string // KID
	Algorithm   string // "EdDSA"
	PrivateKey  ed25519.PrivateKey
	PublicKey   ed25519.PublicKey
	ActivatedAt time.Time
	RetiredAt   *time.Time
}

// Status deriva el estado a partir de RetiredAt.
func (k *SigningKey) Status() KeyStatus {
	if k.RetiredAt == nil {
		return KeyStatusActive
	}
	return KeyStatusRetiring
}

// AcceptsAt reporta si la clave todavía verifica en now dado el grace period.
func (k *SigningKey) AcceptsAt(now time.Time, grace time.Duration) bool {
	if k.RetiredAt == nil {
		return true
	}
	return now.Before(k.RetiredAt.Add(grace))
}

// KeyInfo es la vista pública (sin material privado) de una clave.
type KeyInfo struct {
	KID         string     `json:"kid"`
	Algorithm   string     `json:"alg"`
	Status      KeyStatus  `json:"status"`
	ActivatedAt time.Time  `json:"activated_at"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
	AcceptUntil *time.Time `json:"accept_until,omitempty"`
}

// JWK representa una clave pública en formato JWK (para JWKS endpoint).
type JWK struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
}

// JWKS representa un conjunto de claves públicas.
type JWKS struct {
	Keys []JWK `json:"keys"`
}
