package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext guarda l como logger del request.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From devuelve el logger del request o, si no hay, el singleton. Nunca nil.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return L()
}

// Enrich agrega campos al logger del contexto y devuelve el contexto nuevo.
// Lo usan capas internas (p.ej. rutas con {id}) para que todo log posterior
// del request los lleve.
func Enrich(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return ToContext(ctx, From(ctx).With(fields...))
}
