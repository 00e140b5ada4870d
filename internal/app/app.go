// Package app arma el gateway completo a partir de la configuración:
// storage, keystore, engine, capability sets, rate limiting y los dos
// routers HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/keygate/internal/config"
	"github.com/dropDatabas3/keygate/internal/engine"
	khttp "github.com/dropDatabas3/keygate/internal/http"
	adminctrl "github.com/dropDatabas3/keygate/internal/http/controllers/admin"
	publicctrl "github.com/dropDatabas3/keygate/internal/http/controllers/public"
	"github.com/dropDatabas3/keygate/internal/http/router"
	"github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/rate"
	"github.com/dropDatabas3/keygate/internal/security/password"
	"github.com/dropDatabas3/keygate/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	// drivers de storage
	_ "github.com/dropDatabas3/keygate/internal/storage/all"
)

// Deps dependencias externas opcionales (tests).
type Deps struct {
	// Gatherer para /metrics. nil = registry default.
	Gatherer prometheus.Gatherer
}

// App es el gateway cableado.
type App struct {
	Config *config.Config
	Engine *engine.Engine
	Data   *store.Manager

	Public http.Handler
	Admin  http.Handler

	closers []func() error
}

// New construye todo. Si algo falla a mitad de camino cierra lo ya abierto.
func New(ctx context.Context, cfg *config.Config, deps Deps) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	log := logger.From(ctx).With(logger.Component("app"))

	// ─── Storage ───
	data, err := store.NewManager(ctx, store.ManagerConfig{
		Storage:    cfg.StorageConfig(),
		NaturalKey: cfg.Identity.NaturalKey,
		Retention:  cfg.Storage.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Data = data
	a.closers = append(a.closers, data.Close)

	// ─── Keys + engine ───
	ks, err := jwt.NewKeystore(jwt.KeystoreOptions{Grace: cfg.Keys.RotationGrace})
	if err != nil {
		return nil, fmt.Errorf("init keystore: %w", err)
	}
	a.Engine = engine.New(data.Identities(), data.Sessions(), jwt.NewIssuer(cfg.Tokens.Issuer, ks), engine.Config{
		DefaultTTL: cfg.Tokens.DefaultTTL,
		MaxTTL:     cfg.Tokens.MaxTTL,
	})

	cred := engine.CredentialConfig{Policy: cfg.PasswordPolicy()}
	if p := cfg.Identity.PasswordBlacklistPath; p != "" {
		bl, err := password.LoadBlacklist(p)
		if err != nil {
			return nil, fmt.Errorf("load password blacklist: %w", err)
		}
		cred.Blacklist = bl
		log.Info("password blacklist loaded", logger.Count(bl.Len()))
	}
	pub, adm := engine.NewCapabilities(a.Engine, cred)

	// ─── Rate limiting ───
	limiter := a.buildLimiter()
	if limiter != nil {
		log.Info("rate limiting enabled", logger.Backend(cfg.Storage.Driver))
	}

	// ─── HTTP ───
	if cfg.Server.Public.Enabled() {
		a.Public = router.NewPublicRouter(router.PublicRouterDeps{
			Controller: publicctrl.NewController(pub),
			Prefix:     cfg.Server.Public.Prefix,
			Rate: router.RateDeps{
				Limiter:     limiter,
				TrustProxy:  cfg.Server.TrustProxy,
				LoginLimit:  cfg.Rate.Login.Limit,
				LoginWindow: cfg.Rate.Login.Window,
			},
		})
	}
	if cfg.Server.Admin.Enabled() {
		a.Admin = router.NewAdminRouter(router.AdminRouterDeps{
			Controller: adminctrl.NewController(adm, data),
			Prefix:     cfg.Server.Admin.Prefix,
			APIKey:     cfg.Server.Admin.APIKey,
			Gatherer:   deps.Gatherer,
		})
	}
	return a, nil
}

// buildLimiter usa redis cuando el storage es redis (límite compartido entre
// réplicas); si no, un limiter en memoria por proceso.
func (a *App) buildLimiter() rate.MultiLimiter {
	cfg := a.Config
	if !cfg.Rate.Enabled {
		return nil
	}
	if cfg.Storage.Driver == "redis" {
		r := cfg.Storage.Redis
		client := rdb.NewClient(&rdb.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
		a.closers = append(a.closers, client.Close)
		return rate.NewRedisMulti(client, r.Prefix+":rl", cfg.Rate.MaxRequests, cfg.Rate.Window)
	}
	return rate.NewMemoryMulti(cfg.Rate.MaxRequests, cfg.Rate.Window)
}

// Listeners devuelve los servidores habilitados.
func (a *App) Listeners() []khttp.Listener {
	var out []khttp.Listener
	if a.Public != nil {
		out = append(out, khttp.Listener{Name: "public", Addr: a.Config.Server.Public.Addr(), Handler: a.Public})
	}
	if a.Admin != nil {
		out = append(out, khttp.Listener{Name: "admin", Addr: a.Config.Server.Admin.Addr(), Handler: a.Admin})
	}
	return out
}

// Run sirve hasta que ctx termine. Con keys.auto_rotate > 0 además rota la
// clave de firma en background.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if every := a.Config.Keys.AutoRotate; every > 0 {
		go a.Engine.RunKeyRotation(ctx, every)
	}
	return khttp.NewServer(a.Config.Server.ShutdownTimeout, a.Listeners()...).Run(ctx)
}

// Close libera recursos en orden inverso.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
