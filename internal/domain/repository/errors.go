package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: natural key ya ligada a otra identidad).
	ErrConflict = errors.New("conflict")

	// ErrInvalid indica un token malformado o cuya firma no verifica.
	ErrInvalid = errors.New("invalid token")

	// ErrExpired indica que el token ya expiró (now >= expires_at).
	ErrExpired = errors.New("token expired")

	// ErrRevoked indica que la sesión fue revocada.
	ErrRevoked = errors.New("session revoked")

	// ErrIdentityDisabled indica que la identidad dueña no está activa.
	ErrIdentityDisabled = errors.New("identity disabled")

	// ErrInvalidTransition indica un cambio de status no monótono (ej: deleted -> active).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidCredentials indica natural key o password incorrectos en un login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indica backend inalcanzable o pool agotado. Retryable.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrTimeout indica que la operación contra el backend excedió su deadline. Retryable.
	ErrTimeout = errors.New("storage timeout")

	// ErrCorrupt indica un payload que no se pudo deserializar. Fatal sólo para esa operación.
	ErrCorrupt = errors.New("corrupt record")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reporta si el caller puede reintentar (con backoff) la operación.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
