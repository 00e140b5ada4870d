// Package engine implementa el ciclo de vida de sesiones: emisión,
// verificación, refresh y revocación de tokens firmados ligados a una
// identidad.
//
// Estado por sesión: Issued -> Active -> {Expired | Revoked}. Active no se
// persiste; se calcula en cada Verify a partir del registro en storage y del
// status de la identidad. No hay registro de sesiones en memoria: varias
// instancias pueden compartir el mismo backend.
//
// El engine no autoriza. PublicAPI y AdminAPI (capabilities.go) son los dos
// conjuntos de entrada disjuntos que el transporte expone por separado.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/observability/tracing"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/google/uuid"
)

// Config parámetros inmutables del engine.
type Config struct {
	DefaultTTL time.Duration // ttl <= 0 en Issue usa este valor
	MaxTTL     time.Duration // tope para cualquier ttl pedido (0 = sin tope)
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = time.Hour
	}
	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		c.DefaultTTL = c.MaxTTL
	}
	return c
}

// IssuedSession es el resultado de una emisión. Token sólo existe acá: el
// registro persistido guarda su fingerprint.
type IssuedSession struct {
	Session repository.Session
	Token   string
}

// Engine coordina keystore, identidades y sesiones.
type Engine struct {
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
	keys       *jwt.Keystore
	issuer     *jwt.Issuer
	cfg        Config
	now        func() time.Time
}

// Option configura el Engine.
type Option func(*Engine)

// WithClock inyecta el reloj (tests). Debe ser el mismo que usa el keystore.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(identities repository.IdentityRepository, sessions repository.SessionRepository, issuer *jwt.Issuer, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		identities: identities,
		sessions:   sessions,
		keys:       issuer.Keys,
		issuer:     issuer,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// clock devuelve now en UTC truncado a segundos: es la precisión de iat/exp
// en el token, así registro y token coinciden exactamente.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

func (e *Engine) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}
	if e.cfg.MaxTTL > 0 && ttl > e.cfg.MaxTTL {
		ttl = e.cfg.MaxTTL
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// ─── Issue ───

// Issue emite una sesión para una identidad activa.
// Errores: NotFound, IdentityDisabled, o transitorios del storage.
func (e *Engine) Issue(ctx context.Context, identityID string, ttl time.Duration) (_ *IssuedSession, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanIssue, tracing.AttrIdentityID.String(identityID))
	defer func() { tracing.End(span, err, repository.ErrNotFound, repository.ErrIdentityDisabled) }()

	ident, err := e.identities.Get(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !ident.Active() {
		return nil, repository.ErrIdentityDisabled
	}
	return e.issueFor(ctx, ident.ID, ttl)
}

// issueFor firma y persiste. El token sólo se devuelve si el registro ya
// quedó escrito.
func (e *Engine) issueFor(ctx context.Context, identityID string, ttl time.Duration) (*IssuedSession, error) {
	now := e.clock()
	sid := uuid.NewString()
	exp := now.Add(e.effectiveTTL(ttl))

	token, kid, err := e.issuer.Sign(sid, identityID, now, exp)
	if err != nil {
		// sin clave activa no hay fallback posible
		return nil, fmt.Errorf("sign session: %w", err)
	}

	s := repository.Session{
		ID:               sid,
		IdentityID:       identityID,
		KID:              kid,
		TokenFingerprint: tokens.Fingerprint(token),
		IssuedAt:         now,
		ExpiresAt:        exp,
	}
	if err := e.sessions.Create(ctx, &s); err != nil {
		return nil, err
	}

	metrics.SessionsIssued.Inc()
	logger.From(ctx).Debug("session issued",
		logger.IdentityID(identityID), logger.SessionID(sid), logger.KID(kid))
	return &IssuedSession{Session: s, Token: token}, nil
}

// ─── Verify ───

// verified es el resultado interno de una verificación exitosa.
type verified struct {
	session  *repository.Session
	identity *repository.Identity
}

// Verify valida el token y devuelve el id de la identidad dueña.
//
// Orden (corta en la primera falla): parse, KID + firma, ventana temporal,
// revocación del registro, status de la identidad. Los dos primeros pasos no
// tocan storage. Errores: Invalid, Expired, Revoked, IdentityDisabled, o
// transitorios del storage.
func (e *Engine) Verify(ctx context.Context, token string) (string, error) {
	v, err := e.verify(ctx, token)
	if err != nil {
		return "", err
	}
	return v.identity.ID, nil
}

func (e *Engine) verify(ctx context.Context, token string) (_ *verified, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanVerify)
	defer func() {
		metrics.TokenVerifications.WithLabelValues(verifyResult(err)).Inc()
		tracing.End(span, err,
			repository.ErrInvalid, repository.ErrExpired, repository.ErrRevoked, repository.ErrIdentityDisabled)
	}()
	log := logger.From(ctx)

	// 1-2) parse + firma
	p, err := e.issuer.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrInvalid, err)
	}
	span.SetAttributes(tracing.AttrSessionID.String(p.SessionID), tracing.AttrKID.String(p.KID))

	// 3) ventana [iat, exp)
	now := e.now()
	if now.Before(p.IssuedAt) {
		return nil, fmt.Errorf("%w: issued in the future", repository.ErrInvalid)
	}
	if !now.Before(p.ExpiresAt) {
		return nil, repository.ErrExpired
	}

	// 4) registro de sesión
	s, err := e.sessions.Get(ctx, p.SessionID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: unknown session", repository.ErrInvalid)
	case errors.Is(err, storage.ErrCorrupt):
		log.Error("corrupt session record", logger.SessionID(p.SessionID), logger.Err(err))
		return nil, fmt.Errorf("%w: %w", repository.ErrInvalid, err)
	case err != nil:
		return nil, err
	}
	if s.IdentityID != p.IdentityID || s.KID != p.KID || !tokens.FingerprintMatches(token, s.TokenFingerprint) {
		log.Warn("token does not match session record", logger.SessionID(s.ID))
		return nil, fmt.Errorf("%w: session mismatch", repository.ErrInvalid)
	}
	switch s.State(now) {
	case repository.SessionExpired:
		return nil, repository.ErrExpired
	case repository.SessionRevoked:
		return nil, repository.ErrRevoked
	}

	// 5) status de la identidad
	ident, err := e.identities.Get(ctx, p.IdentityID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: unknown identity", repository.ErrInvalid)
	case errors.Is(err, storage.ErrCorrupt):
		log.Error("corrupt identity record", logger.IdentityID(p.IdentityID), logger.Err(err))
		return nil, fmt.Errorf("%w: %w", repository.ErrInvalid, err)
	case err != nil:
		return nil, err
	}
	if !ident.Active() {
		return nil, repository.ErrIdentityDisabled
	}

	span.SetAttributes(tracing.AttrIdentityID.String(ident.ID))
	return &verified{session: s, identity: ident}, nil
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, repository.ErrInvalid):
		return "invalid"
	case errors.Is(err, repository.ErrExpired):
		return "expired"
	case errors.Is(err, repository.ErrRevoked):
		return "revoked"
	case errors.Is(err, repository.ErrIdentityDisabled):
		return "identity_disabled"
	default:
		return "error"
	}
}

// ─── Revoke ───

// Revoke marca la sesión como revocada. Idempotente; NotFound si no existe.
func (e *Engine) Revoke(ctx context.Context, sessionID string) (err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanRevoke, tracing.AttrSessionID.String(sessionID))
	defer func() { tracing.End(span, err, repository.ErrNotFound) }()

	_, err = e.revoke(ctx, sessionID, "single")
	return err
}

// revoke devuelve changed=true si esta llamada fue la que revocó.
func (e *Engine) revoke(ctx context.Context, sessionID, source string) (bool, error) {
	s, changed, err := e.sessions.Revoke(ctx, sessionID, e.now())
	if err != nil || !changed {
		return false, err
	}
	metrics.SessionsRevoked.WithLabelValues(source).Inc()
	logger.From(ctx).Info("session revoked",
		logger.SessionID(sessionID), logger.IdentityID(s.IdentityID), logger.String("source", source))
	return true, nil
}

// RevokeAll revoca todas las sesiones no expiradas y no revocadas de la
// identidad. Devuelve cuántas revocó. Se detiene en el primer error de
// storage; las ya revocadas quedan revocadas.
func (e *Engine) RevokeAll(ctx context.Context, identityID string) (n int, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanRevokeAll, tracing.AttrIdentityID.String(identityID))
	defer func() { tracing.End(span, err, repository.ErrNotFound) }()

	if _, err := e.identities.Get(ctx, identityID); err != nil {
		return 0, err
	}
	list, err := e.sessions.ListByIdentity(ctx, identityID)
	if err != nil {
		return 0, err
	}
	now := e.now()
	for i := range list {
		if list[i].State(now) != repository.SessionActive {
			continue
		}
		_, changed, err := e.sessions.Revoke(ctx, list[i].ID, now)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	if n > 0 {
		metrics.SessionsRevoked.WithLabelValues("all").Add(float64(n))
	}
	logger.From(ctx).Info("sessions revoked", logger.IdentityID(identityID), logger.Count(n))
	return n, nil
}

// ─── Refresh ───

// Refresh verifica token, emite una sesión nueva para la misma identidad y
// revoca la anterior. Es de un solo uso: de dos refresh concurrentes del
// mismo token sólo el que efectivamente revoca entrega la sesión nueva; el
// otro recibe Revoked. Si la revocación falla se devuelve el error y la
// sesión nueva no se entrega.
func (e *Engine) Refresh(ctx context.Context, token string, ttl time.Duration) (_ *IssuedSession, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanRefresh)
	defer func() {
		tracing.End(span, err,
			repository.ErrInvalid, repository.ErrExpired, repository.ErrRevoked, repository.ErrIdentityDisabled)
	}()

	v, err := e.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	issued, err := e.issueFor(ctx, v.identity.ID, ttl)
	if err != nil {
		return nil, err
	}
	won, err := e.revoke(ctx, v.session.ID, "refresh")
	if err == nil && !won {
		err = repository.ErrRevoked
	}
	if err != nil {
		// el token nuevo nunca se entrega; su registro se revoca igual
		if _, rerr := e.revoke(ctx, issued.Session.ID, "refresh_aborted"); rerr != nil {
			logger.From(ctx).Warn("aborted refresh session not revoked",
				logger.SessionID(issued.Session.ID), logger.Err(rerr))
		}
		return nil, err
	}
	return issued, nil
}

// ─── Keys ───

// RotateKeys genera una clave nueva. Un fallo deja el keystore intacto.
func (e *Engine) RotateKeys(ctx context.Context) (kid string, err error) {
	_, span := tracing.Start(ctx, tracing.SpanRotate)
	defer func() { tracing.End(span, err) }()

	kid, err = e.keys.Rotate()
	if err != nil {
		metrics.KeyRotations.WithLabelValues("failed").Inc()
		logger.From(ctx).Error("key rotation failed", logger.Err(err))
		return "", err
	}
	metrics.KeyRotations.WithLabelValues("ok").Inc()
	metrics.KeysAccepted.Set(float64(len(e.keys.Keys())))
	span.SetAttributes(tracing.AttrKID.String(kid))
	logger.From(ctx).Info("signing key rotated", logger.KID(kid))
	return kid, nil
}

// Keys lista las claves aceptadas (sin material privado).
func (e *Engine) Keys() []repository.KeyInfo { return e.keys.Keys() }

// JWKS devuelve el material público de verificación.
func (e *Engine) JWKS() []byte { return e.keys.JWKSJSON() }

// RunKeyRotation rota cada every hasta que ctx termine. Un fallo se loguea y
// la clave activa sigue siendo la anterior.
func (e *Engine) RunKeyRotation(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = e.RotateKeys(ctx)
		}
	}
}
