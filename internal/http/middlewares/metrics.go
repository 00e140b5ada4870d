package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// routeLabel usa el patrón de chi (/identities/{id}) para no explotar la
// cardinalidad con ids.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// WithMetrics registra contador y latencia por surface/método/ruta.
func WithMetrics(surface string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			metrics.HTTPRequests.WithLabelValues(surface, r.Method, route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPDuration.WithLabelValues(surface, r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
