package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/QKhanh04/innerg-api/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Server runs the HTTP API until its context ends.
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With("module", "http_server"),
	}
}

func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts on lis. In-flight requests get shutdownTimeout to finish
// once ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}
