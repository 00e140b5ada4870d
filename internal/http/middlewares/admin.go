package middlewares

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/http/errors"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
)

// AdminKeyHeader header que lleva la API key de la superficie admin.
const AdminKeyHeader = "X-Admin-API-Key"

// RequireAdminKey exige la API key configurada. La comparación es en tiempo
// constante sobre los hashes (no filtra el largo de la key).
func RequireAdminKey(apiKey string) Middleware {
	want := sha256.Sum256([]byte(apiKey))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
			if got == "" {
				errors.WriteError(w, r, errors.ErrUnauthorized.WithDetail("missing "+AdminKeyHeader))
				return
			}
			sum := sha256.Sum256([]byte(got))
			if apiKey == "" || subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
				logger.From(r.Context()).Warn("admin api key rejected")
				errors.WriteError(w, r, errors.ErrForbidden.WithDetail("invalid admin api key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
