package store

import "strings"

// Layout de keys sobre el storage. Todo el resto del paquete pasa por acá.
//
//	identity:<id>                 -> registro de identidad
//	nk:<attr>:<valor normalizado> -> id de la identidad dueña de la natural key
//	session:<id>                  -> registro de sesión
//	idx:identities                -> lista de ids (enumeración admin)
//	idx:sessions:<identityID>     -> lista de session ids de la identidad
const (
	prefixIdentity   = "identity:"
	prefixNaturalKey = "nk:"
	prefixSession    = "session:"
	keyIdentityIndex = "idx:identities"
	prefixSessionIdx = "idx:sessions:"
)

func identityKey(id string) string { return prefixIdentity + id }

func naturalKeyKey(attr, value string) string {
	return prefixNaturalKey + attr + ":" + NormalizeNaturalKey(value)
}

func sessionKey(id string) string { return prefixSession + id }

func sessionIndexKey(identityID string) string { return prefixSessionIdx + identityID }

// NormalizeNaturalKey normaliza el valor de la natural key (trim + lowercase).
func NormalizeNaturalKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
