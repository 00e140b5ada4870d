package logger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance atomic.Pointer[zap.Logger]
)

// Init inicializa el logger singleton con la configuración dada.
// Es idempotente: solo la primera llamada tiene efecto.
// Debe llamarse al inicio de la aplicación (main.go).
func Init(cfg Config) {
	once.Do(func() {
		instance.Store(build(cfg))
	})
}

// L retorna el logger singleton.
// Si Init() no fue llamado, crea un logger por defecto (dev, info).
func L() *zap.Logger {
	if l := instance.Load(); l != nil {
		return l
	}
	Init(Config{Env: "dev", Level: "info"})
	return instance.Load()
}

// Replace instala l como singleton y devuelve una función que restaura el anterior.
// Pensado para tests (zaptest/observer).
func Replace(l *zap.Logger) (restore func()) {
	once.Do(func() {}) // un Init posterior no debe pisar l
	prev := instance.Swap(l)
	return func() { instance.Store(prev) }
}

// Named retorna un logger con un nombre de componente.
// El nombre aparece en los logs para identificar el origen.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With retorna un logger con campos adicionales.
// Útil para agregar contexto persistente (ej: backend en un store).
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea cualquier buffer pendiente.
// Debe llamarse con defer en main.go.
func Sync() error {
	if l := instance.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
