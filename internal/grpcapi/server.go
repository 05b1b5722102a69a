// Package grpcapi exposes the standard gRPC health service so probes and
// grpcurl can see whether the process is up and whether capture is running.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CaptureService is the health service name that tracks the capture loop.
const CaptureService = "facegate.capture"

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
}

type Server struct {
	logger *slog.Logger
	addr   string
	grpc   *grpc.Server
	health *health.Server
}

func New(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CaptureService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{logger: logger, addr: d.Addr, grpc: gs, health: hs}
}

// SetCaptureServing flips the capture service status.  Safe to call from
// the capture goroutine.
func (s *Server) SetCaptureServing(running bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if running {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CaptureService, st)
}

// ListenAndServe blocks until ctx is done, then stops gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc server starting", "addr", lis.Addr().String())
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		s.logger.Info("grpc server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
