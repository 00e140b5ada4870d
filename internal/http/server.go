// Package http levanta los listeners de las superficies public y admin.
package http

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"golang.org/x/sync/errgroup"
)

// Listener un servidor con nombre (para logs).
type Listener struct {
	Name    string
	Addr    string
	Handler http.Handler
}

// Server corre N listeners y los apaga juntos.
type Server struct {
	listeners       []Listener
	shutdownTimeout time.Duration
}

func NewServer(shutdownTimeout time.Duration, ls ...Listener) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &Server{listeners: ls, shutdownTimeout: shutdownTimeout}
}

func newHTTPServer(l Listener) *http.Server {
	return &http.Server{
		Addr:              l.Addr,
		Handler:           l.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    16 << 10,
	}
}

// Run bloquea hasta que ctx se cancela o algún listener falla. En ambos
// casos hace shutdown ordenado de todos con shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	log := logger.L().With(logger.Component("http"))

	// Bind primero: un puerto ocupado falla antes de servir nada.
	type bound struct {
		srv *http.Server
		ln  net.Listener
		l   Listener
	}
	var all []bound
	for _, l := range s.listeners {
		ln, err := net.Listen("tcp", l.Addr)
		if err != nil {
			for _, b := range all {
				_ = b.ln.Close()
			}
			return err
		}
		all = append(all, bound{srv: newHTTPServer(l), ln: ln, l: l})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range all {
		g.Go(func() error {
			log.Info("listening", logger.Surface(b.l.Name), logger.String("addr", b.ln.Addr().String()))
			if err := b.srv.Serve(b.ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		var errs []error
		for _, b := range all {
			if err := b.srv.Shutdown(sctx); err != nil {
				log.Warn("shutdown failed", logger.Surface(b.l.Name), logger.Err(err))
				errs = append(errs, err)
			}
		}
		log.Info("servers stopped")
		return stderrors.Join(errs...)
	})

	return g.Wait()
}
