package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/observability/tracing"
	"github.com/dropDatabas3/keygate/internal/security/password"
	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/dropDatabas3/keygate/internal/util"
)

// ═══════════════════════════════════════════════════════════════════════════
// Capability sets
//
// PublicAPI: todo se deriva del token o las credenciales del caller. Ningún
// método recibe un identity id arbitrario.
// AdminAPI: operaciones parametrizadas por cualquier identity/session id.
//
// El engine no autentica; el transporte monta cada set en su propia
// superficie y decide quién llega a cada una.
// ═══════════════════════════════════════════════════════════════════════════

// CredentialConfig configura hashing y política de passwords.
type CredentialConfig struct {
	Params    password.Params
	Policy    password.Policy
	Blacklist *password.Blacklist // opcional
}

func (c CredentialConfig) withDefaults() CredentialConfig {
	if c.Params == (password.Params{}) {
		c.Params = password.Default
	}
	return c
}

// NewCapabilities arma los dos sets sobre el mismo engine.
func NewCapabilities(e *Engine, cred CredentialConfig) (*PublicAPI, *AdminAPI) {
	cred = cred.withDefaults()
	return &PublicAPI{e: e, cred: cred}, &AdminAPI{e: e, cred: cred}
}

// redact devuelve una copia sin el hash de credencial.
func redact(i *repository.Identity) *repository.Identity {
	cp := i.Clone()
	cp.CredentialHash = ""
	return cp
}

func (c CredentialConfig) hash(plain string) (string, error) {
	if err := c.Policy.Check(plain, c.Blacklist); err != nil {
		return "", fmt.Errorf("%w: %w", repository.ErrInvalidInput, err)
	}
	h, err := password.Hash(c.Params, plain)
	if err != nil {
		return "", fmt.Errorf("%w: %w", repository.ErrInvalidInput, err)
	}
	return h, nil
}

// ─── Public ───

// PublicAPI operaciones self-service.
type PublicAPI struct {
	e    *Engine
	cred CredentialConfig
}

// Register crea una identidad activa con password.
func (p *PublicAPI) Register(ctx context.Context, attrs map[string]string, plainPassword string) (_ *repository.Identity, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanCreate)
	defer func() { tracing.End(span, err, repository.ErrConflict, repository.ErrInvalidInput) }()

	h, err := p.cred.hash(plainPassword)
	if err != nil {
		return nil, err
	}
	ident, err := p.e.identities.Create(ctx, repository.CreateIdentityInput{Attributes: attrs, CredentialHash: h})
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("identity registered", logger.IdentityID(ident.ID))
	return redact(ident), nil
}

// Login valida natural key + password y emite una sesión propia.
// Identidad inexistente y password incorrecto son indistinguibles (mismo
// error, mismo costo). El status se chequea después del password.
func (p *PublicAPI) Login(ctx context.Context, naturalKey, plainPassword string, ttl time.Duration) (_ *IssuedSession, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanLogin)
	defer func() {
		tracing.End(span, err, repository.ErrInvalidCredentials, repository.ErrIdentityDisabled)
	}()

	rejected := func() (*IssuedSession, error) {
		logger.From(ctx).Info("login rejected", logger.String("natural_key", util.MaskNaturalKey(naturalKey)))
		return nil, repository.ErrInvalidCredentials
	}

	ident, err := p.e.identities.FindByNaturalKey(ctx, naturalKey)
	if errors.Is(err, storage.ErrNotFound) {
		password.VerifyDummy(p.cred.Params, plainPassword)
		return rejected()
	}
	if err != nil {
		return nil, err
	}
	if ident.CredentialHash == "" || !password.Verify(plainPassword, ident.CredentialHash) {
		if ident.CredentialHash == "" {
			password.VerifyDummy(p.cred.Params, plainPassword)
		}
		return rejected()
	}
	if !ident.Active() {
		return nil, repository.ErrIdentityDisabled
	}
	return p.e.issueFor(ctx, ident.ID, ttl)
}

// Verify valida un token y devuelve el id de su identidad.
func (p *PublicAPI) Verify(ctx context.Context, token string) (string, error) {
	return p.e.Verify(ctx, token)
}

// Me devuelve la identidad dueña del token.
func (p *PublicAPI) Me(ctx context.Context, token string) (*repository.Identity, error) {
	v, err := p.e.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return redact(v.identity), nil
}

// Logout revoca la sesión del propio token.
func (p *PublicAPI) Logout(ctx context.Context, token string) error {
	v, err := p.e.verify(ctx, token)
	if err != nil {
		return err
	}
	_, err = p.e.revoke(ctx, v.session.ID, "logout")
	return err
}

// Refresh rota la sesión del propio token.
func (p *PublicAPI) Refresh(ctx context.Context, token string, ttl time.Duration) (*IssuedSession, error) {
	return p.e.Refresh(ctx, token, ttl)
}

// JWKS material público de verificación.
func (p *PublicAPI) JWKS() []byte { return p.e.JWKS() }

// ─── Admin ───

// AdminAPI operaciones sobre cualquier identidad o sesión.
type AdminAPI struct {
	e    *Engine
	cred CredentialConfig
}

// CreateIdentity crea una identidad; el password es opcional (identidades
// que sólo reciben sesiones emitidas por admin).
func (a *AdminAPI) CreateIdentity(ctx context.Context, attrs map[string]string, plainPassword string) (_ *repository.Identity, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanCreate)
	defer func() { tracing.End(span, err, repository.ErrConflict, repository.ErrInvalidInput) }()

	in := repository.CreateIdentityInput{Attributes: attrs}
	if plainPassword != "" {
		if in.CredentialHash, err = a.cred.hash(plainPassword); err != nil {
			return nil, err
		}
	}
	ident, err := a.e.identities.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("identity created by admin", logger.IdentityID(ident.ID))
	return redact(ident), nil
}

func (a *AdminAPI) GetIdentity(ctx context.Context, id string) (*repository.Identity, error) {
	ident, err := a.e.identities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return redact(ident), nil
}

func (a *AdminAPI) FindIdentity(ctx context.Context, naturalKey string) (*repository.Identity, error) {
	ident, err := a.e.identities.FindByNaturalKey(ctx, naturalKey)
	if err != nil {
		return nil, err
	}
	return redact(ident), nil
}

func (a *AdminAPI) ListIdentities(ctx context.Context, f repository.ListIdentitiesFilter) ([]repository.Identity, error) {
	list, err := a.e.identities.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].CredentialHash = ""
	}
	return list, nil
}

// StatusChange resultado de UpdateStatus.
type StatusChange struct {
	Identity        *repository.Identity
	SessionsRevoked int
}

// UpdateStatus cambia el status. Para disabled/deleted además revoca todas
// las sesiones; Verify ya rechaza identidades no activas, esto es una segunda
// barrera. Si la revocación falla el status ya quedó aplicado y se devuelve
// el error: reintentar es seguro (same -> same es válido y vuelve a revocar).
func (a *AdminAPI) UpdateStatus(ctx context.Context, id string, status repository.IdentityStatus) (_ *StatusChange, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanStatus, tracing.AttrIdentityID.String(id))
	defer func() {
		tracing.End(span, err, repository.ErrNotFound, repository.ErrInvalidTransition, repository.ErrInvalidInput)
	}()

	ident, err := a.e.identities.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("identity status updated",
		logger.IdentityID(id), logger.IdentityStatus(string(ident.Status)))

	out := &StatusChange{Identity: redact(ident)}
	if ident.Status == repository.StatusActive {
		return out, nil
	}
	n, err := a.e.RevokeAll(ctx, id)
	out.SessionsRevoked = n
	if err != nil {
		return out, fmt.Errorf("status applied, revoke_all failed: %w", err)
	}
	return out, nil
}

// IssueSession emite una sesión para cualquier identidad activa.
func (a *AdminAPI) IssueSession(ctx context.Context, identityID string, ttl time.Duration) (*IssuedSession, error) {
	return a.e.Issue(ctx, identityID, ttl)
}

// ListSessions lista las sesiones de una identidad con su estado actual.
func (a *AdminAPI) ListSessions(ctx context.Context, identityID string) ([]repository.Session, error) {
	if _, err := a.e.identities.Get(ctx, identityID); err != nil {
		return nil, err
	}
	return a.e.sessions.ListByIdentity(ctx, identityID)
}

// SessionState estado computado de s en el reloj del engine.
func (a *AdminAPI) SessionState(s *repository.Session) repository.SessionState {
	return s.State(a.e.now())
}

func (a *AdminAPI) RevokeSession(ctx context.Context, sessionID string) error {
	return a.e.Revoke(ctx, sessionID)
}

func (a *AdminAPI) RevokeAll(ctx context.Context, identityID string) (int, error) {
	return a.e.RevokeAll(ctx, identityID)
}

func (a *AdminAPI) RotateKeys(ctx context.Context) (string, error) {
	return a.e.RotateKeys(ctx)
}

func (a *AdminAPI) ListKeys() []repository.KeyInfo { return a.e.Keys() }
