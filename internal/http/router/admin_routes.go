package router

import (
	"net/http"

	ctrl "github.com/dropDatabas3/keygate/internal/http/controllers/admin"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const surfaceAdmin = "admin"

// AdminRouterDeps dependencias del router admin.
type AdminRouterDeps struct {
	Controller *ctrl.Controller
	Prefix     string
	APIKey     string

	// Gatherer para /metrics; nil = prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewAdminRouter registra las rutas administrativas. Todo excepto /readyz
// exige X-Admin-API-Key.
func NewAdminRouter(deps AdminRouterDeps) http.Handler {
	c := deps.Controller
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	root := newMux()
	root.Route(basePath(deps.Prefix, AdminBasePath), func(r chi.Router) {
		r.Use(mw.Std(baseChain(surfaceAdmin)...)...)

		// Health sin auth (lo consultan orquestadores)
		r.Get("/readyz", c.Readyz)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdminKey(deps.APIKey))

			r.Route("/identities", func(r chi.Router) {
				r.Get("/", c.ListIdentities)
				r.Post("/", c.CreateIdentity)
				r.Get("/lookup", c.LookupIdentity)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(mw.WithURLParamLog("id", logger.IdentityID))
					r.Get("/", c.GetIdentity)
					r.Put("/status", c.UpdateStatus)
					r.Get("/sessions", c.ListSessions)
					r.Post("/sessions", c.IssueSession)
					r.Post("/revoke-all", c.RevokeAll)
				})
			})

			r.With(mw.WithURLParamLog("sid", logger.SessionID)).Delete("/sessions/{sid}", c.RevokeSession)

			r.Get("/keys", c.ListKeys)
			r.Post("/keys/rotate", c.RotateKeys)

			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		})
	})

	return root
}
