package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(Chain(okHandler, tag("a"), tag("b"), tag("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}), WithRequestID())

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "client-rid")
	serve(h, r)
	assert.Equal(t, "client-rid", seen)

	r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	serve(h, r)
	assert.NotEqual(t, strings.Repeat("x", 200), seen)
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), WithRecover())
	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestRequireAdminKey(t *testing.T) {
	h := Chain(okHandler, RequireAdminKey("k-0123456789abcdef"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	r.Header.Set(AdminKeyHeader, "k-0123456789abcdeX")
	assert.Equal(t, http.StatusForbidden, serve(h, r).Code)

	r.Header.Set(AdminKeyHeader, "k-0123456789abcdef")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)

	// key vacía en config: nada pasa
	h = Chain(okHandler, RequireAdminKey(""))
	r.Header.Set(AdminKeyHeader, "anything")
	assert.Equal(t, http.StatusForbidden, serve(h, r).Code)
}

func TestRequireBearer(t *testing.T) {
	var tok string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok = GetToken(r.Context())
	}), RequireBearer())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := serve(h, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	r.Header.Set("Authorization", "Bearer a.b.c")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)
	assert.Equal(t, "a.b.c", tok)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "10.0.0.7", clientIP(r, false))
	assert.Equal(t, "203.0.113.9", clientIP(r, true))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func (brokenLimiter) AllowWithLimits(context.Context, string, int, time.Duration) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	h := Chain(okHandler, WithRateLimit(RateLimitConfig{
		Limiter: rate.NewMemoryMulti(2, time.Minute),
		Surface: "public",
	}))
	r := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	assert.Equal(t, http.StatusOK, serve(h, r).Code)
	w := serve(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = serve(h, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// otra ruta, otro contador
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodPost, "/identities", nil)).Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := Chain(okHandler, WithRateLimit(RateLimitConfig{Limiter: brokenLimiter{}}))
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestNoStoreAndSecurityHeaders(t *testing.T) {
	w := serve(Chain(okHandler, WithSecurityHeaders(), WithNoStore()), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestLoggingRecordsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/public/me", nil)
	r.Header.Set("User-Agent", "keygate-test/1.0")
	serve(Chain(okHandler, WithLogging("public")), r)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "public", fields["surface"])
	assert.Equal(t, "keygate-test/1.0", fields["user_agent"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}
