package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mtr002/linkboard/internal/logger"
)

type ServerOptions struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
}

func NewServer(services Services, opts ServerOptions) *Server {
	mux := http.NewServeMux()
	AddRoutes(mux, services)

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%s", opts.Port),
			Handler:      mux,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		shutdownTimeout: opts.ShutdownTimeout,
	}
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	logger.Logger.Info().Str("addr", s.http.Addr).Msg("Starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
