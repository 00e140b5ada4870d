package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dropDatabas3/keygate/internal/security/password"
	"github.com/dropDatabas3/keygate/internal/storage"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefijo de todas las variables de entorno.
const EnvPrefix = "KEYGATE_"

// Surface es un servidor HTTP (public o admin). Port 0 lo deshabilita.
type Surface struct {
	Interface string `yaml:"interface" env:"INTERFACE"`
	Port      int    `yaml:"port" env:"PORT"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
}

// Enabled reporta si el servidor debe levantarse.
func (s Surface) Enabled() bool { return s.Port > 0 }

// Addr interface:port para net/http.
func (s Surface) Addr() string {
	return net.JoinHostPort(s.Interface, strconv.Itoa(s.Port))
}

type Config struct {
	App struct {
		// dev | prod | test
		Env string `yaml:"env" env:"ENV"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Server struct {
		Public Surface `yaml:"public" envPrefix:"PUBLIC_"`
		Admin  struct {
			Surface `yaml:",inline"`
			APIKey  string `yaml:"api_key" env:"API_KEY"`
		} `yaml:"admin" envPrefix:"ADMIN_"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
		// TrustProxy respeta X-Forwarded-For para la IP del cliente (rate limit, logs).
		TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
		Redis  struct {
			Addr     string `yaml:"addr" env:"REDIS_ADDR"`
			Password string `yaml:"password" env:"REDIS_PASSWORD"`
			DB       int    `yaml:"db" env:"REDIS_DB"`
			Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
		} `yaml:"redis"`
		Bolt struct {
			Path string `yaml:"path" env:"BOLT_PATH"`
		} `yaml:"bolt"`
		Postgres struct {
			DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
		} `yaml:"postgres"`
		SQLite struct {
			Path string `yaml:"path" env:"SQLITE_PATH"`
		} `yaml:"sqlite"`
		MaxConns       int           `yaml:"max_conns" env:"STORAGE_MAX_CONNS"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout" env:"STORAGE_ACQUIRE_TIMEOUT"`
		OpTimeout      time.Duration `yaml:"op_timeout" env:"STORAGE_OP_TIMEOUT"`
		// Retention: cuánto sobrevive un registro de sesión después de expirar
		// (sólo backends con TTL). 0 = para siempre.
		Retention time.Duration `yaml:"retention" env:"STORAGE_RETENTION"`
	} `yaml:"storage"`

	Tokens struct {
		Issuer     string        `yaml:"issuer" env:"TOKENS_ISSUER"`
		DefaultTTL time.Duration `yaml:"default_ttl" env:"TOKENS_DEFAULT_TTL"`
		MaxTTL     time.Duration `yaml:"max_ttl" env:"TOKENS_MAX_TTL"`
	} `yaml:"tokens"`

	Keys struct {
		RotationGrace time.Duration `yaml:"rotation_grace" env:"KEYS_ROTATION_GRACE"`
		AutoRotate    time.Duration `yaml:"auto_rotate" env:"KEYS_AUTO_ROTATE"` // 0 = off
	} `yaml:"keys"`

	Identity struct {
		NaturalKey     string `yaml:"natural_key" env:"IDENTITY_NATURAL_KEY"`
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length" env:"PASSWORD_MIN_LENGTH"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
		PasswordBlacklistPath string `yaml:"password_blacklist_path" env:"PASSWORD_BLACKLIST_PATH"`
	} `yaml:"identity"`

	Rate struct {
		Enabled     bool          `yaml:"enabled" env:"RATE_ENABLED"`
		MaxRequests int           `yaml:"max_requests" env:"RATE_MAX_REQUESTS"`
		Window      time.Duration `yaml:"window" env:"RATE_WINDOW"`

		// Login/register: más estricto que el global
		Login struct {
			Limit  int           `yaml:"limit" env:"RATE_LOGIN_LIMIT"`
			Window time.Duration `yaml:"window" env:"RATE_LOGIN_WINDOW"`
		} `yaml:"login"`
	} `yaml:"rate"`
}

// Load lee el YAML (path vacío = sin archivo), aplica defaults y después los
// overrides de entorno KEYGATE_*. No valida: llamar Validate.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyDefaults()
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Public.Port == 0 && c.Server.Admin.Port == 0 {
		c.Server.Public.Port = 8080
		c.Server.Admin.Port = 8081
		if c.Server.Admin.Interface == "" {
			c.Server.Admin.Interface = "127.0.0.1"
		}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "keygate"
	}
	if c.Storage.MaxConns == 0 {
		c.Storage.MaxConns = 15
	}
	if c.Storage.AcquireTimeout == 0 {
		c.Storage.AcquireTimeout = 2 * time.Second
	}
	if c.Storage.OpTimeout == 0 {
		c.Storage.OpTimeout = 3 * time.Second
	}
	if c.Tokens.Issuer == "" {
		c.Tokens.Issuer = "keygate"
	}
	if c.Tokens.DefaultTTL == 0 {
		c.Tokens.DefaultTTL = time.Hour
	}
	if c.Tokens.MaxTTL == 0 {
		c.Tokens.MaxTTL = 720 * time.Hour // 30d
	}
	if c.Keys.RotationGrace == 0 {
		c.Keys.RotationGrace = 10 * time.Minute
	}
	if c.Identity.NaturalKey == "" {
		c.Identity.NaturalKey = "email"
	}
	if c.Identity.PasswordPolicy.MinLength == 0 {
		c.Identity.PasswordPolicy.MinLength = 10
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == 0 {
		c.Rate.Login.Window = time.Minute
	}
}

// applyEnvOverrides pisa sólo los campos cuya variable está definida.
func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ─── Validación ───

var (
	validEnvs    = []string{"dev", "prod", "test"}
	validLevels  = []string{"debug", "info", "warn", "error"}
	validDrivers = []string{"memory", "redis", "bolt", "postgres", "sqlite"}
)

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Validate junta todos los problemas en un único error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !oneOf(c.App.Env, validEnvs) {
		add("app.env: %q not one of %s", c.App.Env, strings.Join(validEnvs, "|"))
	}
	if !oneOf(strings.ToLower(c.Log.Level), validLevels) {
		add("log.level: %q not one of %s", c.Log.Level, strings.Join(validLevels, "|"))
	}

	pub, adm := c.Server.Public, c.Server.Admin
	for _, sf := range []struct {
		name string
		s    Surface
	}{{"public", pub}, {"admin", adm.Surface}} {
		name, s := sf.name, sf.s
		if s.Port < 0 || s.Port > 65535 {
			add("server.%s.port: %d out of range", name, s.Port)
		}
		if s.Prefix != "" && (!strings.HasPrefix(s.Prefix, "/") || strings.HasSuffix(s.Prefix, "/")) {
			add("server.%s.prefix: must start with / and not end with /", name)
		}
	}
	if !pub.Enabled() && !adm.Enabled() {
		add("server: at least one of public/admin must have a port")
	}
	if pub.Enabled() && adm.Enabled() && pub.Addr() == adm.Addr() {
		add("server: public and admin cannot share %s", pub.Addr())
	}
	if adm.Enabled() && len(adm.APIKey) < 16 {
		add("server.admin.api_key: required (min 16 chars) when the admin surface is enabled")
	}

	switch c.Storage.Driver {
	case "redis":
		if c.Storage.Redis.Addr == "" {
			add("storage.redis.addr: required for driver redis")
		}
	case "bolt":
		if c.Storage.Bolt.Path == "" {
			add("storage.bolt.path: required for driver bolt")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			add("storage.postgres.dsn: required for driver postgres")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			add("storage.sqlite.path: required for driver sqlite")
		}
	case "memory":
	default:
		add("storage.driver: %q not one of %s", c.Storage.Driver, strings.Join(validDrivers, "|"))
	}
	if c.Storage.MaxConns < 1 {
		add("storage.max_conns: must be >= 1")
	}
	if c.Storage.AcquireTimeout < 0 || c.Storage.OpTimeout < 0 || c.Storage.Retention < 0 {
		add("storage: timeouts and retention must be >= 0")
	}

	if c.Tokens.DefaultTTL < time.Second {
		add("tokens.default_ttl: must be >= 1s")
	}
	if c.Tokens.MaxTTL < c.Tokens.DefaultTTL {
		add("tokens.max_ttl: must be >= tokens.default_ttl")
	}
	if c.Keys.RotationGrace <= 0 {
		add("keys.rotation_grace: must be > 0")
	}
	if c.Keys.AutoRotate < 0 {
		add("keys.auto_rotate: must be >= 0")
	}
	if strings.TrimSpace(c.Identity.NaturalKey) == "" {
		add("identity.natural_key: required")
	}

	if c.Rate.Enabled {
		if c.Rate.MaxRequests < 1 || c.Rate.Window <= 0 {
			add("rate: max_requests and window must be > 0")
		}
		if c.Rate.Login.Limit < 1 || c.Rate.Login.Window <= 0 {
			add("rate.login: limit and window must be > 0")
		}
	}
	return errors.Join(errs...)
}

// ─── Conversión a configs de componentes ───

// StorageConfig arma el storage.Config para storage.Open.
func (c *Config) StorageConfig() storage.Config {
	var sc storage.Config
	sc.Driver = c.Storage.Driver
	sc.Redis.Addr = c.Storage.Redis.Addr
	sc.Redis.Password = c.Storage.Redis.Password
	sc.Redis.DB = c.Storage.Redis.DB
	sc.Redis.Prefix = c.Storage.Redis.Prefix
	sc.BoltPath = c.Storage.Bolt.Path
	sc.PostgresDSN = c.Storage.Postgres.DSN
	sc.SQLitePath = c.Storage.SQLite.Path
	sc.MaxConns = c.Storage.MaxConns
	sc.AcquireTimeout = c.Storage.AcquireTimeout
	sc.OpTimeout = c.Storage.OpTimeout
	return sc
}

// PasswordPolicy política de passwords configurada.
func (c *Config) PasswordPolicy() password.Policy {
	pp := c.Identity.PasswordPolicy
	return password.Policy{
		MinLength:     pp.MinLength,
		RequireUpper:  pp.RequireUpper,
		RequireLower:  pp.RequireLower,
		RequireDigit:  pp.RequireDigit,
		RequireSymbol: pp.RequireSymbol,
	}
}
