// Package admin contiene los handlers de la superficie administrativa.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/keygate/internal/audit"
	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/engine"
	"github.com/dropDatabas3/keygate/internal/http/dto"
	"github.com/dropDatabas3/keygate/internal/http/errors"
	"github.com/dropDatabas3/keygate/internal/http/helpers"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/go-chi/chi/v5"
)

// Pinger health-check del backend (store.DataAccessLayer lo implementa).
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

type Controller struct {
	api   *engine.AdminAPI
	ready Pinger
}

func NewController(api *engine.AdminAPI, ready Pinger) *Controller {
	return &Controller{api: api, ready: ready}
}

// ─── Identities ───

// CreateIdentity POST /identities
func (c *Controller) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateIdentityRequest
	if !helpers.ReadValidJSON(w, r, &req) {
		return
	}
	ident, err := c.api.CreateIdentity(r.Context(), req.Attributes, req.Password)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	audit.Log(r.Context(), audit.IdentityCreated, logger.IdentityID(ident.ID))
	helpers.WriteJSON(w, http.StatusCreated, dto.NewIdentityResponse(ident))
}

// ListIdentities GET /identities?status=&limit=&offset=
func (c *Controller) ListIdentities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f repository.ListIdentitiesFilter

	if s := q.Get("status"); s != "" {
		st := repository.IdentityStatus(s)
		if !st.IsValid() {
			errors.WriteError(w, r, errors.ErrInvalidParameter.WithDetail("status"))
			return
		}
		f.Status = &st
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				errors.WriteError(w, r, errors.ErrInvalidParameter.WithDetail(name))
				return
			}
			*dst = n
		}
	}

	list, err := c.api.ListIdentities(r.Context(), f)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	resp := dto.IdentityListResponse{Items: make([]dto.IdentityResponse, 0, len(list)), Limit: f.Limit, Offset: f.Offset}
	for i := range list {
		resp.Items = append(resp.Items, dto.NewIdentityResponse(&list[i]))
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// GetIdentity GET /identities/{id}
func (c *Controller) GetIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := c.api.GetIdentity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.NewIdentityResponse(ident))
}

// LookupIdentity GET /identities/lookup?key=
func (c *Controller) LookupIdentity(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		errors.WriteError(w, r, errors.ErrInvalidParameter.WithDetail("key is required"))
		return
	}
	ident, err := c.api.FindIdentity(r.Context(), key)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.NewIdentityResponse(ident))
}

// UpdateStatus PUT /identities/{id}/status
func (c *Controller) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateStatusRequest
	if !helpers.ReadValidJSON(w, r, &req) {
		return
	}
	change, err := c.api.UpdateStatus(r.Context(), chi.URLParam(r, "id"), repository.IdentityStatus(req.Status))
	if err != nil {
		if change != nil {
			// el status quedó aplicado; la revocación falló y se puede reintentar
			logger.From(r.Context()).Error("revoke after status change failed",
				logger.IdentityID(change.Identity.ID), logger.Err(err))
		}
		errors.WriteError(w, r, err)
		return
	}
	audit.Log(r.Context(), audit.IdentityStatus,
		logger.IdentityID(change.Identity.ID),
		logger.IdentityStatus(string(change.Identity.Status)),
		logger.Count(change.SessionsRevoked))
	helpers.WriteJSON(w, http.StatusOK, dto.StatusChangeResponse{
		Identity:        dto.NewIdentityResponse(change.Identity),
		SessionsRevoked: change.SessionsRevoked,
	})
}

// ─── Sessions ───

// IssueSession POST /identities/{id}/sessions
func (c *Controller) IssueSession(w http.ResponseWriter, r *http.Request) {
	var req dto.IssueSessionRequest
	if r.ContentLength != 0 && !helpers.ReadValidJSON(w, r, &req) {
		return
	}
	issued, err := c.api.IssueSession(r.Context(), chi.URLParam(r, "id"), dto.TTL(req.TTLSeconds))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	audit.Log(r.Context(), audit.SessionIssued,
		logger.IdentityID(issued.Session.IdentityID), logger.SessionID(issued.Session.ID))
	helpers.WriteJSON(w, http.StatusCreated, dto.NewTokenResponse(issued.Session, issued.Token))
}

// ListSessions GET /identities/{id}/sessions
func (c *Controller) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := c.api.ListSessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	out := make([]dto.SessionResponse, 0, len(list))
	for i := range list {
		out = append(out, dto.NewSessionResponse(list[i], c.api.SessionState(&list[i])))
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// RevokeAll POST /identities/{id}/revoke-all
func (c *Controller) RevokeAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := c.api.RevokeAll(r.Context(), id)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	audit.Log(r.Context(), audit.SessionsRevokeAll, logger.IdentityID(id), logger.Count(n))
	helpers.WriteJSON(w, http.StatusOK, dto.RevokeAllResponse{SessionsRevoked: n})
}

// RevokeSession DELETE /sessions/{sid}
func (c *Controller) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if err := c.api.RevokeSession(r.Context(), sid); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	audit.Log(r.Context(), audit.SessionRevoked, logger.SessionID(sid))
	w.WriteHeader(http.StatusNoContent)
}

// ─── Keys ───

// ListKeys GET /keys
func (c *Controller) ListKeys(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.KeysResponse{Keys: c.api.ListKeys()})
}

// RotateKeys POST /keys/rotate
func (c *Controller) RotateKeys(w http.ResponseWriter, r *http.Request) {
	kid, err := c.api.RotateKeys(r.Context())
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	audit.Log(r.Context(), audit.KeyRotated, logger.KID(kid))
	helpers.WriteJSON(w, http.StatusOK, dto.RotateResponse{KID: kid})
}

// ─── Health ───

// Readyz GET /readyz: 200 si el backend responde, 503 si no.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ready", "storage": c.ready.Driver()}
	if err := c.ready.Ping(ctx); err != nil {
		logger.From(r.Context()).Warn("readiness check failed", logger.Err(err))
		resp["status"] = "unavailable"
		resp["error"] = errors.FromError(err).Code
		helpers.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
