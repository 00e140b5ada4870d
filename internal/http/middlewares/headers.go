package middlewares

import (
	"net/http"
	"strings"
)

// Directivas de Cache-Control usadas por los routers.
const (
	CacheNoStore = "no-store"
	CacheJWKS    = "public, max-age=60"
)

// apiHeaders cabeceras fijas de una API JSON (nunca servimos HTML).
var apiHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Referrer-Policy", "no-referrer"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
}

const hsts = "max-age=15552000; includeSubDomains"

// WithSecurityHeaders agrega apiHeaders y HSTS cuando el request vino por TLS
// (directo o con X-Forwarded-Proto: https).
func WithSecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithCacheControl fija Cache-Control. Un middleware posterior lo pisa, así
// que el router pone el default (no-store) y JWKS lo reemplaza.
func WithCacheControl(directive string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", directive)
			if directive == CacheNoStore {
				w.Header().Set("Pragma", "no-cache")
			} else {
				w.Header().Del("Pragma")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithNoStore todo lo que lleva tokens o datos de identidad.
func WithNoStore() Middleware { return WithCacheControl(CacheNoStore) }
