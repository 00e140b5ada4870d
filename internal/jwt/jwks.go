package jwt

import (
	"encoding/json"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// buildJWKS construye el JWKS JSON con las públicas que todavía verifican.
func buildJWKS(keys []*repository.SigningKey) []byte {
	jwks := repository.JWKS{
		Keys: make([]repository.JWK, 0, len(keys)),
	}
	for _, k := range keys {
		if len(k.PublicKey) == 0 {
			continue
		}
		jwks.Keys = append(jwks.Keys, repository.JWK{
			KID: k.ID,
			Kty: "OKP",
			Crv: "Ed25519",
			Alg: k.Algorithm,
			Use: "sig",
			X:   EncodeBase64URL(k.PublicKey),
		})
	}
	b, _ := json.Marshal(jwks)
	return b
}
