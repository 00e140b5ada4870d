package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Driver representa un backend capaz de abrir un Store.
type Driver interface {
	// Name retorna el nombre del driver (ej: "memory", "redis", "bolt", "postgres", "sqlite").
	Name() string

	// Open establece conexión con el backend.
	Open(ctx context.Context, cfg Config) (Store, error)
}

// Config configuración para abrir un Store.
type Config struct {
	// Driver: "memory" | "redis" | "bolt" | "postgres" | "sqlite"
	Driver string

	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string // Prefijo para todas las keys
	}

	// BoltPath archivo de la base embebida (driver bolt)
	BoltPath string

	// PostgresDSN connection string (driver postgres)
	PostgresDSN string

	// SQLitePath archivo de la base (driver sqlite)
	SQLitePath string

	// Pool settings. MaxConns acota las operaciones concurrentes contra el backend.
	MaxConns       int
	AcquireTimeout time.Duration
	OpTimeout      time.Duration
}

// withDefaults completa los valores por defecto de pool.
func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 15
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 2 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 3 * time.Second
	}
	return c
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Driver)
)

// Register registra un driver en el registry global.
// Llamar en init() de cada driver.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := d.Name()
	if _, exists := drivers[name]; exists {
		panic(fmt.Sprintf("storage: driver %q already registered", name))
	}
	drivers[name] = d
}

// Lookup obtiene un driver por nombre.
func Lookup(name string) (Driver, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// Drivers retorna los nombres de todos los drivers registrados.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open abre el driver configurado y lo envuelve con el pool acotado.
// El backend se elige acá, en construcción; nada aguas arriba conoce el tipo concreto.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	d, ok := Lookup(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("storage: unknown driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	s, err := d.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Driver, Classify(err))
	}
	return Bound(Instrument(s, cfg.Driver), BoundOptions{
		MaxConns:       cfg.MaxConns,
		AcquireTimeout: cfg.AcquireTimeout,
		OpTimeout:      cfg.OpTimeout,
	}), nil
}
