package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/keygate/internal/http/errors"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPRateKey clave por IP + ruta.
func IPRateKey(trustProxy bool) RateKeyFunc {
	return func(r *http.Request) string {
		return clientIP(r, trustProxy) + "|" + r.URL.Path
	}
}

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter rate.MultiLimiter
	KeyFunc RateKeyFunc
	Surface string

	// Limit/Window > 0 usan AllowWithLimits; si no, el default del limiter.
	Limit  int
	Window time.Duration
}

// WithRateLimit crea un middleware de rate limiting fixed-window.
// Si el limiter falla (redis caído) el request pasa.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRateKey(false)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)

			var (
				res rate.Result
				err error
			)
			if cfg.Limit > 0 && cfg.Window > 0 {
				res, err = cfg.Limiter.AllowWithLimits(r.Context(), key, cfg.Limit, cfg.Window)
			} else {
				res, err = cfg.Limiter.Allow(r.Context(), key)
			}
			if err != nil {
				logger.From(r.Context()).Warn("rate limit check failed", logger.Key(key), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}
			if !res.Allowed {
				metrics.RateLimited.WithLabelValues(cfg.Surface).Inc()
				logger.From(r.Context()).Debug("request rate limited", logger.Key(key))
				errors.WriteError(w, r, errors.ErrRateLimitExceeded.WithRetryAfter(res.RetryAfter))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
