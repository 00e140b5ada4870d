package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "keygate.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 15, c.Storage.MaxConns)
	assert.Equal(t, time.Hour, c.Tokens.DefaultTTL)
	assert.Equal(t, 720*time.Hour, c.Tokens.MaxTTL)
	assert.Equal(t, 10*time.Minute, c.Keys.RotationGrace)
	assert.Equal(t, "email", c.Identity.NaturalKey)
	assert.Equal(t, 8080, c.Server.Public.Port)
	assert.Equal(t, "127.0.0.1:8081", c.Server.Admin.Addr())

	// admin habilitado sin api key no valida
	assert.ErrorContains(t, c.Validate(), "api_key")
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	p := writeYAML(t, `
app:
  env: prod
server:
  public:
    port: 9000
    prefix: /gw
  admin:
    interface: 10.0.0.1
    port: 9001
    api_key: from-yaml-0123456789
storage:
  driver: sqlite
  sqlite:
    path: /var/lib/keygate/kv.db
  op_timeout: 750ms
  retention: 24h
tokens:
  default_ttl: 15m
keys:
  auto_rotate: 12h
`)
	t.Setenv("KEYGATE_ADMIN_API_KEY", "from-env-0123456789")
	t.Setenv("KEYGATE_STORAGE_MAX_CONNS", "4")
	t.Setenv("KEYGATE_TOKENS_MAX_TTL", "2h")

	c, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "prod", c.App.Env)
	assert.Equal(t, "/gw", c.Server.Public.Prefix)
	assert.Equal(t, "10.0.0.1:9001", c.Server.Admin.Addr())
	assert.Equal(t, "from-env-0123456789", c.Server.Admin.APIKey)
	assert.Equal(t, 750*time.Millisecond, c.Storage.OpTimeout)
	assert.Equal(t, 24*time.Hour, c.Storage.Retention)
	assert.Equal(t, 15*time.Minute, c.Tokens.DefaultTTL)
	assert.Equal(t, 2*time.Hour, c.Tokens.MaxTTL)
	assert.Equal(t, 12*time.Hour, c.Keys.AutoRotate)

	sc := c.StorageConfig()
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, "/var/lib/keygate/kv.db", sc.SQLitePath)
	assert.Equal(t, 4, sc.MaxConns)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "tokens:\n  default_ttl: soon\n"))
	assert.Error(t, err)

	t.Setenv("KEYGATE_STORAGE_MAX_CONNS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		c, err := Load("")
		require.NoError(t, err)
		c.Server.Admin.APIKey = "0123456789abcdef"
		require.NoError(t, c.Validate())
		return c
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }, "storage.driver"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = "redis" }, "storage.redis.addr"},
		{"bolt without path", func(c *Config) { c.Storage.Driver = "bolt" }, "storage.bolt.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.postgres.dsn"},
		{"max below default", func(c *Config) { c.Tokens.MaxTTL = time.Minute }, "tokens.max_ttl"},
		{"zero grace", func(c *Config) { c.Keys.RotationGrace = 0 }, "keys.rotation_grace"},
		{"both surfaces off", func(c *Config) { c.Server.Public.Port, c.Server.Admin.Port = 0, 0 }, "at least one"},
		{"same addr", func(c *Config) {
			c.Server.Admin.Interface = c.Server.Public.Interface
			c.Server.Admin.Port = c.Server.Public.Port
		}, "cannot share"},
		{"bad prefix", func(c *Config) { c.Server.Public.Prefix = "api/" }, "server.public.prefix"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"rate without window", func(c *Config) { c.Rate.Enabled = true; c.Rate.Window = 0 }, "rate:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base(t)
			tc.mutate(c)
			assert.ErrorContains(t, c.Validate(), tc.wantErr)
		})
	}

	t.Run("admin disabled needs no key", func(t *testing.T) {
		c := base(t)
		c.Server.Admin.Port = 0
		c.Server.Admin.APIKey = ""
		assert.NoError(t, c.Validate())
	})
}

func TestPasswordPolicy(t *testing.T) {
	c, err := Load(writeYAML(t, "identity:\n  password_policy:\n    min_length: 12\n    require_digit: true\n"))
	require.NoError(t, err)
	p := c.PasswordPolicy()
	assert.Equal(t, 12, p.MinLength)
	assert.True(t, p.RequireDigit)
	assert.NoError(t, p.Check("twelve chars 1", nil))
}
