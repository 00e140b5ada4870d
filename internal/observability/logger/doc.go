// Package logger es el logging estructurado del gateway (zap).
//
// Init configura el singleton una vez en main; después:
//
//	logger.From(ctx).Info("session issued", logger.SessionID(sid))
//
// Los middlewares HTTP guardan en el contexto un logger con request_id,
// surface, method y path; From lo recupera y cae al singleton si no hay.
// Enrich agrega campos para el resto del request.
//
// Env "dev" escribe consola con colores, "prod" JSON, "test" descarta todo.
// Nunca loguear tokens, passwords ni hashes: sólo ids y fingerprints.
package logger
