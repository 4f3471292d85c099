package server

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"go-subscription-ws/internal/infrastructure/config"
)

// Server is a component with a blocking Start and a graceful Stop.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type HTTPServer struct {
	handler http.Handler
	cfg     config.ServerConfig
	srv     *http.Server
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg config.ServerConfig) *HTTPServer {
	return &HTTPServer{
		handler: handler,
		cfg:     cfg,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Addr returns the configured listen address.
func (h *HTTPServer) Addr() string {
	return h.cfg.Addr
}

func (h *HTTPServer) Start(ctx context.Context) error {
	var eg errgroup.Group
	eg.Go(func() error {
		err := h.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
