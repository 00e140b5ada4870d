package store

import (
	"context"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/storage"
)

// DataAccessLayer agrupa los repositorios sobre un único backend.
type DataAccessLayer interface {
	Identities() repository.IdentityRepository
	Sessions() repository.SessionRepository

	// Capabilities retorna lo que el backend soporta además de Get/Set.
	Capabilities() storage.Capabilities

	// Ping hace health-check del backend (readyz).
	Ping(ctx context.Context) error

	// Driver nombre del driver configurado.
	Driver() string

	Close() error
}

// ManagerConfig configuración para crear un Manager.
type ManagerConfig struct {
	Storage    storage.Config
	NaturalKey string
	Retention  time.Duration
	Now        func() time.Time
}

// Manager es la implementación de DataAccessLayer.
type Manager struct {
	backend    storage.Store
	driver     string
	identities *IdentityStore
	sessions   *SessionStore
}

var _ DataAccessLayer = (*Manager)(nil)

// NewManager abre el driver configurado y arma los stores encima.
// Los drivers deben estar registrados (import de storage/all).
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	s, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	driver := cfg.Storage.Driver
	if driver == "" {
		driver = "memory"
	}
	m := NewManagerWithStore(s, driver, cfg)

	caps := m.Capabilities()
	log := logger.From(ctx).With(logger.Backend(driver))
	log.Info("storage ready",
		logger.Bool("cas", caps.CompareAndSwap),
		logger.Bool("ttl", caps.TTL),
		logger.Bool("ping", caps.Ping),
	)
	if !caps.CompareAndSwap {
		log.Warn("backend has no compare-and-swap: natural key uniqueness is best-effort")
	}
	return m, nil
}

// NewManagerWithStore arma los stores sobre un backend ya abierto (tests).
func NewManagerWithStore(s storage.Store, driver string, cfg ManagerConfig) *Manager {
	return &Manager{
		backend: s,
		driver:  driver,
		identities: NewIdentityStore(s, IdentityStoreOptions{
			NaturalKey: cfg.NaturalKey,
			Now:        cfg.Now,
		}),
		sessions: NewSessionStore(s, SessionStoreOptions{
			Retention: cfg.Retention,
			Now:       cfg.Now,
		}),
	}
}

func (m *Manager) Identities() repository.IdentityRepository { return m.identities }
func (m *Manager) Sessions() repository.SessionRepository    { return m.sessions }

// IdentityStore expone el store concreto (natural key configurada, etc).
func (m *Manager) IdentityStore() *IdentityStore { return m.identities }

func (m *Manager) Capabilities() storage.Capabilities { return storage.CapabilitiesOf(m.backend) }

func (m *Manager) Ping(ctx context.Context) error { return storage.Ping(ctx, m.backend) }

func (m *Manager) Driver() string { return m.driver }

func (m *Manager) Close() error { return m.backend.Close() }
