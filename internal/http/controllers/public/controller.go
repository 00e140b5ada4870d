// Package public contiene los handlers de la superficie self-service.
// Ningún handler recibe un identity id: todo sale del token o de las
// credenciales del caller.
package public

import (
	"net/http"

	"github.com/dropDatabas3/keygate/internal/engine"
	"github.com/dropDatabas3/keygate/internal/http/dto"
	"github.com/dropDatabas3/keygate/internal/http/errors"
	"github.com/dropDatabas3/keygate/internal/http/helpers"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
)

type Controller struct {
	api *engine.PublicAPI
}

func NewController(api *engine.PublicAPI) *Controller {
	return &Controller{api: api}
}

// Register POST /identities
func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !helpers.ReadValidJSON(w, r, &req) {
		return
	}
	ident, err := c.api.Register(r.Context(), req.Attributes, req.Password)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.NewIdentityResponse(ident))
}

// Login POST /sessions
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !helpers.ReadValidJSON(w, r, &req) {
		return
	}
	issued, err := c.api.Login(r.Context(), req.NaturalKey, req.Password, dto.TTL(req.TTLSeconds))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	logger.From(r.Context()).Info("login succeeded",
		logger.IdentityID(issued.Session.IdentityID), logger.SessionID(issued.Session.ID))
	helpers.WriteJSON(w, http.StatusCreated, dto.NewTokenResponse(issued.Session, issued.Token))
}

// Verify POST /sessions/verify (token en Authorization)
func (c *Controller) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := c.api.Verify(r.Context(), mw.GetToken(r.Context()))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.VerifyResponse{IdentityID: id})
}

// Refresh POST /sessions/refresh
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if r.ContentLength != 0 && !helpers.ReadValidJSON(w, r, &req) {
		return
	}
	issued, err := c.api.Refresh(r.Context(), mw.GetToken(r.Context()), dto.TTL(req.TTLSeconds))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.NewTokenResponse(issued.Session, issued.Token))
}

// Logout DELETE /sessions/current
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	if err := c.api.Logout(r.Context(), mw.GetToken(r.Context())); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me GET /me
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	ident, err := c.api.Me(r.Context(), mw.GetToken(r.Context()))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.NewIdentityResponse(ident))
}

// JWKS GET /jwks.json
func (c *Controller) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.api.JWKS())
}
