// Package middlewares decoradores http.Handler de ambas superficies.
package middlewares

import "net/http"

// Middleware decora un http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain envuelve h de modo que el primer middleware sea el más externo:
// Chain(h, A, B) == A(B(h)).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := range mws {
		h = mws[len(mws)-1-i](h)
	}
	return h
}

// Std convierte a la firma que espera chi en r.Use.
func Std(mws ...Middleware) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mws))
	for _, m := range mws {
		out = append(out, m)
	}
	return out
}
