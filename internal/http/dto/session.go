package dto

import (
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// LoginRequest POST /sessions (public).
type LoginRequest struct {
	NaturalKey string `json:"natural_key" validate:"required,max=256"`
	Password   string `json:"password" validate:"required,max=256"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty" validate:"min=0"`
}

// IssueSessionRequest POST /identities/{id}/sessions (admin).
type IssueSessionRequest struct {
	TTLSeconds int64 `json:"ttl_seconds,omitempty" validate:"min=0"`
}

// RefreshRequest POST /sessions/refresh. El token viaja en Authorization.
type RefreshRequest struct {
	TTLSeconds int64 `json:"ttl_seconds,omitempty" validate:"min=0"`
}

// TTL 0 = default del engine.
func TTL(seconds int64) time.Duration { return time.Duration(seconds) * time.Second }

// TokenResponse resultado de login/issue/refresh. Único lugar donde viaja el token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	SessionID string    `json:"session_id"`
	KID       string    `json:"kid"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

func NewTokenResponse(s repository.Session, token string) TokenResponse {
	return TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		SessionID: s.ID,
		KID:       s.KID,
		ExpiresAt: s.ExpiresAt,
		ExpiresIn: int64(s.ExpiresAt.Sub(s.IssuedAt).Seconds()),
	}
}

// VerifyResponse POST /sessions/verify.
type VerifyResponse struct {
	IdentityID string `json:"identity_id"`
}

// SessionResponse vista admin de una sesión (sin fingerprint).
type SessionResponse struct {
	ID         string     `json:"id"`
	IdentityID string     `json:"identity_id"`
	KID        string     `json:"kid"`
	State      string     `json:"state"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

func NewSessionResponse(s repository.Session, state repository.SessionState) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		IdentityID: s.IdentityID,
		KID:        s.KID,
		State:      string(state),
		IssuedAt:   s.IssuedAt,
		ExpiresAt:  s.ExpiresAt,
		RevokedAt:  s.RevokedAt,
	}
}

// RevokeAllResponse POST /identities/{id}/revoke-all.
type RevokeAllResponse struct {
	SessionsRevoked int `json:"sessions_revoked"`
}
