package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	adminctrl "github.com/dropDatabas3/keygate/internal/http/controllers/admin"
	publicctrl "github.com/dropDatabas3/keygate/internal/http/controllers/public"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/engine"
	"github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/rate"
	"github.com/dropDatabas3/keygate/internal/security/password"
	"github.com/dropDatabas3/keygate/internal/storage/memory"
	"github.com/dropDatabas3/keygate/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "0123456789abcdef-admin"

type gateway struct {
	public http.Handler
	admin  http.Handler
}

func newGateway(t *testing.T, limiter rate.MultiLimiter) *gateway {
	t.Helper()
	ks, err := jwt.NewKeystore(jwt.KeystoreOptions{Grace: 10 * time.Minute})
	require.NoError(t, err)

	data := store.NewManagerWithStore(memory.New(), "memory", store.ManagerConfig{})
	t.Cleanup(func() { _ = data.Close() })

	eng := engine.New(data.Identities(), data.Sessions(), jwt.NewIssuer("keygate-test", ks),
		engine.Config{DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour})
	pub, adm := engine.NewCapabilities(eng, engine.CredentialConfig{
		Params: password.Fast,
		Policy: password.Policy{MinLength: 8},
	})

	return &gateway{
		public: NewPublicRouter(PublicRouterDeps{
			Controller: publicctrl.NewController(pub),
			Rate:       RateDeps{Limiter: limiter, LoginLimit: 2, LoginWindow: time.Minute},
		}),
		admin: NewAdminRouter(AdminRouterDeps{
			Controller: adminctrl.NewController(adm, data),
			APIKey:     testAdminKey,
			Gatherer:   prometheus.NewRegistry(),
		}),
	}
}

type call struct {
	method, path string
	body         any
	token        string
	adminKey     string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(c.method, c.path, rd)
	if c.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.adminKey != "" {
		r.Header.Set(mw.AdminKeyHeader, c.adminKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

const pub = PublicBasePath

func register(t *testing.T, g *gateway, email string) string {
	t.Helper()
	w := do(t, g.public, call{method: http.MethodPost, path: pub + "/identities", body: map[string]any{
		"attributes": map[string]string{"email": email},
		"password":   "s3cret-pass",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func login(t *testing.T, g *gateway, email string) string {
	t.Helper()
	w := do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions", body: map[string]any{
		"natural_key": email,
		"password":    "s3cret-pass",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

// ─── Public ───

func TestPublicFlow(t *testing.T) {
	g := newGateway(t, nil)
	id := register(t, g, "Carol@Example.com")
	tok := login(t, g, "carol@example.com")

	w := do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions/verify", token: tok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["identity_id"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, g.public, call{method: http.MethodGet, path: pub + "/me", token: tok})
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, id, me["id"])
	assert.NotContains(t, w.Body.String(), "argon2id")

	w = do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions/refresh", token: tok})
	require.Equal(t, http.StatusCreated, w.Code)
	fresh := decode(t, w)["token"].(string)

	// el token viejo quedó revocado por el refresh
	w = do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions/verify", token: tok})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SESSION_REVOKED", decode(t, w)["code"])

	w = do(t, g.public, call{method: http.MethodDelete, path: pub + "/sessions/current", token: fresh})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, g.public, call{method: http.MethodGet, path: pub + "/me", token: fresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicErrors(t *testing.T) {
	g := newGateway(t, nil)
	register(t, g, "dave@example.com")

	w := do(t, g.public, call{method: http.MethodPost, path: pub + "/identities", body: map[string]any{
		"attributes": map[string]string{"email": "DAVE@example.com"},
		"password":   "another-pass",
	}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, g.public, call{method: http.MethodPost, path: pub + "/identities", body: map[string]any{
		"attributes": map[string]string{"email": "erin@example.com"},
		"password":   "short",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "PASSWORD_TOO_WEAK", decode(t, w)["code"])

	w = do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions", body: map[string]any{
		"natural_key": "dave@example.com",
		"password":    "wrong-pass",
	}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w)["code"])

	w = do(t, g.public, call{method: http.MethodGet, path: pub + "/me"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_MISSING", decode(t, w)["code"])
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	w = do(t, g.public, call{method: http.MethodGet, path: pub + "/me", token: "not.a.jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_INVALID", decode(t, w)["code"])

	w = do(t, g.public, call{method: http.MethodGet, path: pub + "/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", decode(t, w)["code"])

	w = do(t, g.public, call{method: http.MethodGet, path: pub + "/sessions"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPublicSurfaceHasNoAdminRoutes(t *testing.T) {
	g := newGateway(t, nil)
	id := register(t, g, "frank@example.com")

	for _, c := range []call{
		{method: http.MethodGet, path: pub + "/identities/" + id},
		{method: http.MethodPost, path: pub + "/identities/" + id + "/revoke-all"},
		{method: http.MethodGet, path: AdminBasePath + "/identities", adminKey: testAdminKey},
	} {
		w := do(t, g.public, c)
		assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, w.Code, c.path)
	}
}

func TestJWKS(t *testing.T) {
	g := newGateway(t, nil)
	w := do(t, g.public, call{method: http.MethodGet, path: pub + "/jwks.json"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "OKP", set.Keys[0]["kty"])
}

func TestLoginRateLimit(t *testing.T) {
	g := newGateway(t, rate.NewMemoryMulti(100, time.Minute))
	register(t, g, "gina@example.com")

	// Register consumió 1 de 2 en /identities; /sessions tiene su propio contador
	for i := 0; i < 2; i++ {
		login(t, g, "gina@example.com")
	}
	w := do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions", body: map[string]any{
		"natural_key": "gina@example.com",
		"password":    "s3cret-pass",
	}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode(t, w)["code"])
}

// ─── Admin ───

const adm = AdminBasePath

func TestAdminRequiresKey(t *testing.T) {
	g := newGateway(t, nil)

	w := do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities", adminKey: "wrong-key-wrong-key"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/readyz"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode(t, w)["storage"])
}

func TestAdminDisableRevokesSessions(t *testing.T) {
	g := newGateway(t, nil)
	id := register(t, g, "hank@example.com")
	tokA := login(t, g, "hank@example.com")
	tokB := login(t, g, "hank@example.com")

	w := do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities/" + id + "/sessions", adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 2)

	w = do(t, g.admin, call{method: http.MethodPut, path: adm + "/identities/" + id + "/status",
		body: map[string]string{"status": "disabled"}, adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 2, body["sessions_revoked"])

	for _, tok := range []string{tokA, tokB} {
		w = do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions/verify", token: tok})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	// emitir para una identidad deshabilitada falla
	w = do(t, g.admin, call{method: http.MethodPost, path: adm + "/identities/" + id + "/sessions", adminKey: testAdminKey})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, g.admin, call{method: http.MethodPut, path: adm + "/identities/" + id + "/status",
		body: map[string]string{"status": "bogus"}, adminKey: testAdminKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminIdentityAndSessionRoutes(t *testing.T) {
	g := newGateway(t, nil)

	w := do(t, g.admin, call{method: http.MethodPost, path: adm + "/identities",
		body: map[string]any{"attributes": map[string]string{"email": "ivy@example.com"}}, adminKey: testAdminKey})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities/lookup?key=IVY@example.com", adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities/missing", adminKey: testAdminKey})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities?status=active&limit=10", adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/identities?limit=-1", adminKey: testAdminKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, g.admin, call{method: http.MethodPost, path: adm + "/identities/" + id + "/sessions",
		body: map[string]any{"ttl_seconds": 120}, adminKey: testAdminKey})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode(t, w)
	assert.EqualValues(t, 120, issued["expires_in"])
	sid := issued["session_id"].(string)

	w = do(t, g.admin, call{method: http.MethodDelete, path: adm + "/sessions/" + sid, adminKey: testAdminKey})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, g.admin, call{method: http.MethodDelete, path: adm + "/sessions/" + sid, adminKey: testAdminKey})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions/verify", token: issued["token"].(string)})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, g.admin, call{method: http.MethodPost, path: adm + "/identities/" + id + "/revoke-all", adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["sessions_revoked"])
}

func TestAdminKeyRotation(t *testing.T) {
	g := newGateway(t, nil)
	register(t, g, "jack@example.com")
	tok := login(t, g, "jack@example.com")

	w := do(t, g.admin, call{method: http.MethodPost, path: adm + "/keys/rotate", adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)
	kid := decode(t, w)["kid"].(string)

	w = do(t, g.admin, call{method: http.MethodGet, path: adm + "/keys", adminKey: testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)
	var keys struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	require.Len(t, keys.Keys, 2)
	assert.Equal(t, kid, keys.Keys[0]["kid"])

	// dentro del grace el token firmado con la clave anterior sigue valiendo
	w = do(t, g.public, call{method: http.MethodPost, path: pub + "/sessions/verify", token: tok})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPrefix(t *testing.T) {
	h := NewPublicRouter(PublicRouterDeps{Controller: publicctrl.NewController(nil), Prefix: "auth/"})
	w := do(t, h, call{method: http.MethodGet, path: "/auth" + pub + "/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/auth/api/v1/public", basePath("auth/", PublicBasePath))
	assert.Equal(t, PublicBasePath, basePath("/", PublicBasePath))
}

func TestReadyzUnavailable(t *testing.T) {
	h := NewAdminRouter(AdminRouterDeps{Controller: adminctrl.NewController(nil, downPinger{}), APIKey: testAdminKey})
	w := do(t, h, call{method: http.MethodGet, path: adm + "/readyz"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode(t, w)["status"])
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return context.DeadlineExceeded }
func (downPinger) Driver() string             { return "redis" }
