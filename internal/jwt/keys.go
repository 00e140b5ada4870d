package jwt

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// GenerateEd25519 genera un par Ed25519 leyendo entropía de r.
// Un error de r se propaga tal cual: nunca hay fallback a otra fuente.
func GenerateEd25519(r io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}
	return pub, priv, nil
}

// newKID arma un KID legible: timestamp de activación + 4 bytes aleatorios.
func newKID(r io.Reader, now time.Time) (string, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}
	return now.UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(b[:]), nil
}

// EncodeBase64URL codifica bytes a base64url sin padding.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
