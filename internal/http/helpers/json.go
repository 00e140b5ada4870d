package helpers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/http/errors"
)

// MaxBodyBytes tope de cualquier body JSON. Los mensajes de identidad son
// chicos; algo más grande es un error del cliente o abuso.
const MaxBodyBytes = 2 << 10

// ReadJSON decodifica JSON de forma tolerante (no falla por campos desconocidos).
// Valida Content-Type y limita el body a MaxBodyBytes.
// Devuelve false si ya escribió error HTTP.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		errors.WriteError(w, r, errors.ErrUnsupportedMediaType)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.WriteError(w, r, errors.ErrBodyTooLarge)
			return false
		}
		errors.WriteError(w, r, errors.ErrInvalidJSON.WithCause(err))
		return false
	}
	return true
}

// ReadValidJSON ReadJSON + Validate.
func ReadValidJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !ReadJSON(w, r, v) {
		return false
	}
	if err := Validate(v); err != nil {
		errors.WriteError(w, r, err)
		return false
	}
	return true
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BearerToken extrae el token de "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}
