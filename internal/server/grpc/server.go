// Package grpc exposes the standard gRPC health service for the auth server.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry reported alongside the overall ("") status.
const ServiceName = "innerg.auth.v1.AuthService"

// Probe reports whether a backing dependency is usable.
type Probe func(ctx context.Context) error

type HealthServer struct {
	address  string
	logger   logging.Logger
	health   *health.Server
	probe    Probe
	interval time.Duration
}

// NewHealthServer builds a health server on address. When probe is non-nil
// it is run every interval and drives the SERVING / NOT_SERVING status.
func NewHealthServer(address string, l logging.Logger, probe Probe, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthServer{
		address:  address,
		logger:   l.With("module", "grpc_health"),
		health:   health.NewServer(),
		probe:    probe,
		interval: interval,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *HealthServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.check(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

func (s *HealthServer) watch(ctx context.Context) {
	if s.probe == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *HealthServer) check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := s.probe(pctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(ctx, "health probe failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
