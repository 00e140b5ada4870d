package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/keygate/internal/http/errors"
	"github.com/dropDatabas3/keygate/internal/http/helpers"
)

// RequireBearer exige "Authorization: Bearer <token>" y lo deja en el contexto.
// No verifica el token: eso lo hace el engine en el handler.
func RequireBearer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := helpers.BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="keygate"`)
				errors.WriteError(w, r, errors.ErrTokenMissing)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), tok)))
		})
	}
}
