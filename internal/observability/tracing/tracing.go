// Package tracing envuelve el tracer global de OpenTelemetry.
// Sin un TracerProvider instalado los spans son no-op.
package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dropDatabas3/keygate"

// Tracer retorna el tracer del proceso desde el provider global.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Start abre un span con atributos iniciales.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End registra err (si hay) y cierra el span. Los errores esperables del
// dominio (expected) se anotan pero no marcan el span como fallido.
func End(span trace.Span, err error, expected ...error) {
	if err != nil {
		span.RecordError(err)
		if !isExpected(err, expected) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func isExpected(err error, expected []error) bool {
	for _, e := range expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// Span names.
const (
	SpanIssue     = "keygate.session.issue"
	SpanVerify    = "keygate.session.verify"
	SpanRevoke    = "keygate.session.revoke"
	SpanRevokeAll = "keygate.session.revoke_all"
	SpanRefresh   = "keygate.session.refresh"
	SpanRotate    = "keygate.keys.rotate"
	SpanCreate    = "keygate.identity.create"
	SpanLogin     = "keygate.identity.login"
	SpanStatus    = "keygate.identity.update_status"
)

// Attribute keys.
const (
	AttrIdentityID = attribute.Key("keygate.identity_id")
	AttrSessionID  = attribute.Key("keygate.session_id")
	AttrKID        = attribute.Key("keygate.kid")
	AttrResult     = attribute.Key("keygate.result")
)
