// Package router arma los routers chi de las dos superficies HTTP.
//
// Cada superficie vive bajo su propio prefijo y se sirve en su propio
// listener: la pública en [prefix]/api/v1/public, la admin en
// [prefix]/api/v1/admin.
package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/keygate/internal/http/errors"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/rate"
	"github.com/go-chi/chi/v5"
)

const (
	PublicBasePath = "/api/v1/public"
	AdminBasePath  = "/api/v1/admin"
)

// RateDeps rate limiting opcional de una superficie. Limiter nil = sin límite.
type RateDeps struct {
	Limiter    rate.MultiLimiter
	TrustProxy bool

	// Login/Register usan un límite propio por IP.
	LoginLimit  int
	LoginWindow time.Duration
}

// basePath normaliza "[prefix]" + base. Prefix vacío o "/" no agrega nada.
func basePath(prefix, base string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix + base
}

// baseChain middlewares comunes a ambas superficies, en orden.
func baseChain(surface string) []mw.Middleware {
	return []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		mw.WithNoStore(),
		mw.WithLogging(surface),
		mw.WithMetrics(surface),
	}
}

// newMux crea el router raíz con 404/405 en formato AppError.
func newMux() *chi.Mux {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, req, errors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, req, errors.ErrMethodNotAllowed)
	})
	return r
}

func rateLimit(d RateDeps, surface string, limit int, window time.Duration) mw.Middleware {
	return mw.WithRateLimit(mw.RateLimitConfig{
		Limiter: d.Limiter,
		KeyFunc: mw.IPRateKey(d.TrustProxy),
		Surface: surface,
		Limit:   limit,
		Window:  window,
	})
}
