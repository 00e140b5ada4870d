package router

import (
	"net/http"

	ctrl "github.com/dropDatabas3/keygate/internal/http/controllers/public"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/go-chi/chi/v5"
)

const surfacePublic = "public"

// PublicRouterDeps dependencias del router público.
type PublicRouterDeps struct {
	Controller *ctrl.Controller
	Prefix     string
	Rate       RateDeps
}

// NewPublicRouter registra las rutas self-service.
//
//	POST   /identities         register
//	POST   /sessions           login
//	POST   /sessions/verify    verify (bearer)
//	POST   /sessions/refresh   refresh (bearer)
//	DELETE /sessions/current   logout (bearer)
//	GET    /me                 identidad del token (bearer)
//	GET    /jwks.json          claves públicas
func NewPublicRouter(deps PublicRouterDeps) http.Handler {
	c := deps.Controller
	root := newMux()

	root.Route(basePath(deps.Prefix, PublicBasePath), func(r chi.Router) {
		r.Use(mw.Std(baseChain(surfacePublic)...)...)
		r.Use(rateLimit(deps.Rate, surfacePublic, 0, 0))

		// Credenciales: límite más estricto por IP
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(deps.Rate, surfacePublic, deps.Rate.LoginLimit, deps.Rate.LoginWindow))
			r.Post("/identities", c.Register)
			r.Post("/sessions", c.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireBearer())
			r.Post("/sessions/verify", c.Verify)
			r.Post("/sessions/refresh", c.Refresh)
			r.Delete("/sessions/current", c.Logout)
			r.Get("/me", c.Me)
		})

		r.With(mw.WithCacheControl(mw.CacheJWKS)).Get("/jwks.json", c.JWKS)
	})

	return root
}
