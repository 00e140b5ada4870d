package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed     = errors.New("malformed_jwt")
	ErrBadSignature  = errors.New("invalid_signature")
	ErrInvalidIssuer = errors.New("invalid_issuer")
	ErrMissingClaims = errors.New("missing_claims")
)

// Parsed es el resultado de un token cuya firma ya verificó.
type Parsed struct {
	KID        string
	SessionID  string
	IdentityID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Parse valida estructura, algoritmo, KID y firma. No valida tiempos: el
// caller los compara contra su propio reloj para poder distinguir Expired de
// Invalid.
func (i *Issuer) Parse(token string) (*Parsed, error) {
	var claims SessionClaims
	tok, err := jwtv5.ParseWithClaims(token, &claims, i.Keyfunc(),
		jwtv5.WithValidMethods([]string{algEdDSA}),
		jwtv5.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwtv5.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		case errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrKeyRetired):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
		}
	}
	if !tok.Valid {
		return nil, ErrBadSignature
	}

	if i.Iss != "" && claims.Issuer != i.Iss {
		return nil, ErrInvalidIssuer
	}
	if claims.SessionID == "" || claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrMissingClaims
	}
	if claims.ID != "" && claims.ID != claims.SessionID {
		return nil, ErrMissingClaims
	}

	kid, _ := tok.Header["kid"].(string)
	return &Parsed{
		KID:        kid,
		SessionID:  claims.SessionID,
		IdentityID: claims.Subject,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
