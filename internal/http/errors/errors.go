// Package errors traduce los errores del dominio a respuestas HTTP.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/security/password"
)

// errorResponse lo único que ve el cliente.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// FromError convierte cualquier error en un AppError. Los kinds del dominio se
// mapean uno a uno; lo desconocido es 500 conservando la causa.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	switch {
	case stderrors.Is(err, repository.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case stderrors.Is(err, repository.ErrConflict):
		return ErrConflict.WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidCredentials):
		return ErrInvalidCredentials.WithCause(err)
	case stderrors.Is(err, repository.ErrInvalid):
		return ErrTokenInvalid.WithCause(err)
	case stderrors.Is(err, repository.ErrExpired):
		return ErrTokenExpired.WithCause(err)
	case stderrors.Is(err, repository.ErrRevoked):
		return ErrSessionRevoked.WithCause(err)
	case stderrors.Is(err, repository.ErrIdentityDisabled):
		return ErrIdentityDisabled.WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidTransition):
		return ErrInvalidTransition.WithCause(err)
	case stderrors.Is(err, password.ErrWeakPassword):
		return ErrPasswordTooWeak.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidInput):
		return ErrValidation.WithDetail(err.Error()).WithCause(err)
	case repository.IsRetryable(err):
		return ErrServiceUnavailable.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// WriteError escribe la respuesta JSON del error. Los 5xx se loguean con la
// causa; al cliente nunca le llega appErr.Err.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)

	if appErr.HTTPStatus >= 500 {
		logger.From(r.Context()).Error("request failed",
			logger.String("code", appErr.Code), logger.Err(appErr.Err))
	}

	resp := errorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Detail:    appErr.Detail,
		RequestID: w.Header().Get("X-Request-ID"),
	}

	if appErr.RetryAfter > 0 {
		secs := int(appErr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
