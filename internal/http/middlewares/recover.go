package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/keygate/internal/http/errors"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"go.uber.org/zap"
)

// WithRecover convierte un panic del handler en 500. http.ErrAbortHandler se
// re-lanza: es la forma de net/http de cortar la respuesta.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("panic recovered",
					logger.RequestID(GetRequestID(r.Context())),
					logger.Path(r.URL.Path),
					logger.Any("panic", rec),
					zap.Stack("stack"),
				)
				errors.WriteError(w, r, errors.ErrInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
