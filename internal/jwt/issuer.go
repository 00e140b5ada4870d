package jwt

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// SessionClaims es el payload de un token de sesión.
// Liga session id, identity id, issued-at y expires-at; el KID va en el header.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwtv5.RegisteredClaims
}

// Issuer firma tokens usando la clave activa del keystore.
type Issuer struct {
	Iss  string    // "iss"
	Keys *Keystore // keystore en memoria
}

func NewIssuer(iss string, ks *Keystore) *Issuer {
	return &Issuer{Iss: iss, Keys: ks}
}

// ActiveKID devuelve el KID activo actual.
func (i *Issuer) ActiveKID() (string, error) {
	kid, _, err := i.Keys.Active()
	return kid, err
}

// Sign firma una sesión. iat y exp se serializan con precisión de segundo.
// Devuelve el token firmado y el KID usado.
func (i *Issuer) Sign(sessionID, identityID string, iat, exp time.Time) (string, string, error) {
	kid, priv, err := i.Keys.Active()
	if err != nil {
		return "", "", err
	}
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   identityID,
			ID:        sessionID,
			IssuedAt:  jwtv5.NewNumericDate(iat),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", "", err
	}
	return signed, kid, nil
}

// Keyfunc devuelve un jwt.Keyfunc que elige la pubkey por 'kid' del token.
// Sin kid no hay fallback a la activa: el token se rechaza.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrKeyNotFound
		}
		return i.Keys.PublicKey(kid)
	}
}
