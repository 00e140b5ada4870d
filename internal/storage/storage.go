// Package storage define el contrato de persistencia key/value sobre el que
// se apoyan el Identity Store y el Session Store.
//
// El contrato mínimo es Get/Set de bytes por key. Los backends pueden
// anunciar capacidades extra (compare-and-swap, TTL, ping) implementando las
// interfaces opcionales de este paquete; los consumidores las descubren con
// CapabilitiesOf, nunca inspeccionando el tipo concreto del driver.
//
// Garantías:
//   - Sin transacciones multi-key. Toda mutación de entidad es un upsert de
//     una sola key.
//   - Con CompareAndSwapper la unicidad por índice es exacta. Sólo con
//     Get/Set es best-effort: dos escritores concurrentes pueden ganar ambos
//     si sus re-lecturas no se intercalan con la escritura del otro.
//
// Drivers disponibles (registrados via init): memory, redis, bolt, postgres, sqlite.
package storage

import (
	"context"
	"time"
)

// Store es el contrato mínimo que todo backend debe cumplir.
type Store interface {
	// Get obtiene el valor de una key. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set guarda el valor (upsert).
	Set(ctx context.Context, key string, value []byte) error

	// Close libera conexiones/handles.
	Close() error
}

// CompareAndSwapper es la capacidad opcional de escritura condicional atómica.
type CompareAndSwapper interface {
	// CompareAndSwap escribe value sólo si el valor actual es old.
	// old == nil significa "sólo si la key no existe".
	// Retorna false (sin error) si la condición no se cumplió.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error)
}

// Expirer es la capacidad opcional de escribir con TTL (garbage collection del backend).
type Expirer interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Pinger es la capacidad opcional de health-check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Capabilities describe lo que un Store soporta además de Get/Set.
type Capabilities struct {
	CompareAndSwap bool
	TTL            bool
	Ping           bool
}

// capabilityReporter lo implementan los wrappers, que exponen todos los métodos
// opcionales pero sólo anuncian los que el store envuelto soporta.
type capabilityReporter interface {
	Capabilities() Capabilities
}

// CapabilitiesOf retorna las capacidades efectivas de s.
func CapabilitiesOf(s Store) Capabilities {
	if r, ok := s.(capabilityReporter); ok {
		return r.Capabilities()
	}
	var c Capabilities
	_, c.CompareAndSwap = s.(CompareAndSwapper)
	_, c.TTL = s.(Expirer)
	_, c.Ping = s.(Pinger)
	return c
}

// CompareAndSwap usa la capacidad CAS de s si la anuncia.
// supported=false indica que el caller debe caer al camino best-effort.
func CompareAndSwap(ctx context.Context, s Store, key string, old, value []byte) (swapped, supported bool, err error) {
	if !CapabilitiesOf(s).CompareAndSwap {
		return false, false, nil
	}
	cas, ok := s.(CompareAndSwapper)
	if !ok {
		return false, false, nil
	}
	swapped, err = cas.CompareAndSwap(ctx, key, old, value)
	return swapped, true, err
}

// SetWithTTL escribe con TTL si el backend lo soporta; si no, hace un Set plano.
func SetWithTTL(ctx context.Context, s Store, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 && CapabilitiesOf(s).TTL {
		if e, ok := s.(Expirer); ok {
			return e.SetWithTTL(ctx, key, value, ttl)
		}
	}
	return s.Set(ctx, key, value)
}

// Ping hace health-check si el backend lo soporta; si no, asume sano.
func Ping(ctx context.Context, s Store) error {
	if !CapabilitiesOf(s).Ping {
		return nil
	}
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
