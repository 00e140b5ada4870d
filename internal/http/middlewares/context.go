package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/go-chi/chi/v5"
)

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxTokenKey     ctxKey = "bearer_token"
)

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithToken inyecta el bearer token ya extraído.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxTokenKey, token)
}

// GetToken devuelve el bearer token puesto por RequireBearer.
func GetToken(ctx context.Context) string {
	if v, ok := ctx.Value(ctxTokenKey).(string); ok {
		return v
	}
	return ""
}

// WithURLParamLog agrega al logger del request el parámetro de ruta param
// (chi) como campo. Va después de WithLogging.
func WithURLParamLog(param string, field func(string) logger.Field) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := chi.URLParam(r, param); v != "" {
				r = r.WithContext(logger.Enrich(r.Context(), field(v)))
			}
			next.ServeHTTP(w, r)
		})
	}
}
