package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/keygate/internal/app"
	"github.com/dropDatabas3/keygate/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "cli-test-admin-key-012345"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func adminServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Admin.APIKey = testKey

	a, err := app.New(context.Background(), cfg, app.Deps{Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)
	srv := httptest.NewServer(a.Admin)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close()
	})
	return srv
}

func TestKeygen(t *testing.T) {
	out, err := runCLI(t, "keygen-api-key", "--bytes", "24", "--env-file", "")
	require.NoError(t, err)
	assert.Len(t, bytes.TrimSpace([]byte(out)), 32)
}

func TestAdminClientRoundTrip(t *testing.T) {
	srv := adminServer(t)
	c := newAdminClient(srv.URL, "", testKey)
	ctx := context.Background()

	var ident map[string]any
	require.NoError(t, c.do(ctx, http.MethodPost, "/identities", nil,
		map[string]any{"attributes": map[string]string{"email": "lena@example.com"}}, &ident))
	id := ident["id"].(string)

	var issued map[string]any
	require.NoError(t, c.do(ctx, http.MethodPost, "/identities/"+id+"/sessions", nil, map[string]int{}, &issued))
	assert.NotEmpty(t, issued["token"])

	require.NoError(t, c.do(ctx, http.MethodDelete, "/sessions/"+issued["session_id"].(string), nil, nil, nil))

	err := c.do(ctx, http.MethodGet, "/identities/nope", nil, nil, nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	bad := newAdminClient(srv.URL, "", "wrong-key-wrong-key")
	err = bad.do(ctx, http.MethodGet, "/keys", nil, nil, nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestAdminCommand(t *testing.T) {
	srv := adminServer(t)

	out, err := runCLI(t, "admin", "--addr", srv.URL, "--api-key", testKey, "--env-file", "",
		"identities", "create", "--attr", "email=mia@example.com")
	require.NoError(t, err)
	var ident map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ident))
	assert.Equal(t, "active", ident["status"])

	out, err = runCLI(t, "admin", "--addr", srv.URL, "--api-key", testKey, "--env-file", "", "keys", "rotate")
	require.NoError(t, err)
	assert.Contains(t, out, "kid")
}

func TestNewAdminClientBase(t *testing.T) {
	c := newAdminClient("http://h:8081/", "/ops/", "k")
	assert.Equal(t, "http://h:8081/ops/api/v1/admin", c.base)
}
