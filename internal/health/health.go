// Package health publishes pipeline readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/parleyhq/parley/internal/ready"
)

// ServiceName is the health service reported for the capture pipeline.
const ServiceName = "parley.Pipeline"

// Server serves grpc.health.v1 for the pipeline.
type Server struct {
	logger *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

// NewServer starts every service in NOT_SERVING.
func NewServer(logger *slog.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{logger: logger, grpc: gs, health: hs}
}

// Bind flips the pipeline status to SERVING once latch fires.
func (s *Server) Bind(latch *ready.Latch) {
	latch.Subscribe(func() {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if s.logger != nil {
			s.logger.Info("health status serving", "service", ServiceName)
		}
	})
}

// Serve blocks serving on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	if s.logger != nil {
		s.logger.Info("health endpoint listening", "addr", listener.Addr().String())
	}
	if err := s.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Check dials endpoint and returns the pipeline serving status name.
func Check(ctx context.Context, endpoint string, timeout time.Duration) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", errors.New("health endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", fmt.Errorf("dial health %q: %w", endpoint, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return "", fmt.Errorf("wait for health endpoint: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return "", fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus().String(), nil
}

// waitForReady blocks until the connection is Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
