package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dropDatabas3/keygate/internal/config"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Admin.APIKey = "test-admin-key-0123456789"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewMemory(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, Deps{Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Public)
	require.NotNil(t, a.Admin)
	ls := a.Listeners()
	require.Len(t, ls, 2)
	assert.Equal(t, "public", ls[0].Name)
	assert.Equal(t, "127.0.0.1:8081", ls[1].Addr)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/public/identities",
		strings.NewReader(`{"attributes":{"email":"kim@example.com"},"password":"long-enough-pass"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Public.ServeHTTP(w, r)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/api/v1/admin/identities/lookup?key=kim@example.com", nil)
	r.Header.Set(mw.AdminKeyHeader, cfg.Server.Admin.APIKey)
	w = httptest.NewRecorder()
	a.Admin.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestNewSQLiteWithPrefixes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "keygate.db")
	cfg.Server.Public.Prefix = "/auth"
	cfg.Server.Admin.Port = 0

	a, err := New(context.Background(), cfg, Deps{Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.Admin)
	assert.Len(t, a.Listeners(), 1)
	assert.Equal(t, "sqlite", a.Data.Driver())

	w := httptest.NewRecorder()
	a.Public.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/api/v1/public/jwks.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewFailsOnMissingBlacklist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Identity.PasswordBlacklistPath = filepath.Join(t.TempDir(), "missing.txt")
	_, err := New(context.Background(), cfg, Deps{})
	assert.ErrorContains(t, err, "blacklist")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Public.Interface = "127.0.0.1"
	cfg.Server.Public.Port = freePort(t)
	cfg.Server.Admin.Port = 0

	a, err := New(context.Background(), cfg, Deps{Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
