// Package audit registra eventos administrativos (cambios de status,
// revocaciones, rotaciones) en un logger dedicado "audit".
package audit

import (
	"context"

	"github.com/dropDatabas3/keygate/internal/observability/logger"
)

// Eventos
const (
	IdentityCreated   = "identity.created"
	IdentityStatus    = "identity.status_changed"
	SessionIssued     = "session.issued"
	SessionRevoked    = "session.revoked"
	SessionsRevokeAll = "session.revoked_all"
	KeyRotated        = "key.rotated"
)

// Log escribe un evento de auditoría con el logger del request (request_id
// incluido) bajo el nombre "audit".
func Log(ctx context.Context, event string, fields ...logger.Field) {
	logger.From(ctx).Named("audit").Info(event, append(fields, logger.String("event", event))...)
}
