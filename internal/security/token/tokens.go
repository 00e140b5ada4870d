// Package tokens contiene helpers para material opaco: fingerprints de
// tokens de sesión y generación de secretos aleatorios (API keys).
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Fingerprint devuelve sha256(token) en base64url sin padding.
// Es lo único que se persiste de un token de sesión.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// FingerprintMatches compara en tiempo constante.
func FingerprintMatches(token, fingerprint string) bool {
	return subtle.ConstantTimeCompare([]byte(Fingerprint(token)), []byte(fingerprint)) == 1
}
