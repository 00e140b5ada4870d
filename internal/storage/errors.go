package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// Los kinds de error del storage son los del dominio, para que errors.Is
// funcione igual en todas las capas.
var (
	ErrNotFound    = repository.ErrNotFound
	ErrUnavailable = repository.ErrUnavailable
	ErrTimeout     = repository.ErrTimeout
	ErrCorrupt     = repository.ErrCorrupt
)

// ErrNotSupported lo retornan los wrappers cuando el store envuelto no tiene la capacidad.
var ErrNotSupported = errors.New("storage: capability not supported")

// Classify traduce un error nativo de driver a uno de los kinds del contrato.
// Los errores ya clasificados pasan sin cambios. context.Canceled también pasa
// sin cambios: el caller abandonó la operación.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrCorrupt),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// Cualquier otro error del backend lo tratamos como indisponibilidad:
	// el caller decide si reintenta.
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
