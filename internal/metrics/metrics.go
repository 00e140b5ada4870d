// Package metrics define las métricas Prometheus del gateway.
// Viven en un paquete aparte para evitar ciclos entre storage, engine y http.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ─── Storage ───

	StorageOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keygate_storage_op_duration_seconds",
		Help:    "Latencia de operaciones contra el backend de storage",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"backend", "op"})

	StorageOpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_storage_op_errors_total",
		Help: "Errores de storage por backend, operación y kind",
	}, []string{"backend", "op", "kind"})

	// ─── Engine ───

	SessionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keygate_sessions_issued_total",
		Help: "Sesiones emitidas",
	})

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_token_verifications_total",
		Help: "Verificaciones de token por resultado",
	}, []string{"result"}) // ok|invalid|expired|revoked|identity_disabled|error

	SessionsRevoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_sessions_revoked_total",
		Help: "Sesiones revocadas por origen",
	}, []string{"source"}) // single|all|refresh|logout

	IdentityConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keygate_identity_conflicts_total",
		Help: "Creaciones de identidad rechazadas por natural key duplicada",
	})

	// ─── Keys ───

	KeyRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_key_rotations_total",
		Help: "Rotaciones de clave de firma por resultado",
	}, []string{"result"}) // ok|failed

	KeysAccepted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keygate_keys_accepted",
		Help: "Claves aceptadas para verificación (active + retiring)",
	})

	// ─── HTTP ───

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"surface", "method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keygate_http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"surface", "method", "route"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_rate_limited_total",
		Help: "Requests rechazadas por rate limit",
	}, []string{"surface"})
)

func all() []prometheus.Collector {
	return []prometheus.Collector{
		StorageOpDuration, StorageOpErrors,
		SessionsIssued, TokenVerifications, SessionsRevoked, IdentityConflicts,
		KeyRotations, KeysAccepted,
		HTTPRequests, HTTPDuration, RateLimited,
	}
}

// Register registra todas las métricas en el registry indicado (o el default si es nil).
// Ignora duplicados para que sea seguro llamarlo más de una vez.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
