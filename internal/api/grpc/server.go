package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pms-exporter/internal/domain"
	"pms-exporter/internal/infra"
	"pms-exporter/internal/shared/constants"
)

// DefaultWatchInterval is how often WatchHealth polls the sink.
const DefaultWatchInterval = time.Second

// NewServer constructs a gRPC server exposing the standard health service.
// Both statuses start as NOT_SERVING until WatchHealth sees a fresh frame.
func NewServer(logger *infra.Logger) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{
		loggingInterceptor(logger),
		infra.GRPCUnaryInterceptor(),
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(constants.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// WatchHealth mirrors sink freshness into the health server until ctx ends.
// Statuses are set to NOT_SERVING on exit.
func WatchHealth(ctx context.Context, freshness domain.Freshness, healthServer *health.Server, interval time.Duration, logger *infra.Logger) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := healthpb.HealthCheckResponse_UNKNOWN
	apply := func(now time.Time) {
		next := servingStatus(freshness, now)
		if next == current {
			return
		}
		current = next
		healthServer.SetServingStatus("", next)
		healthServer.SetServingStatus(constants.HealthService, next)
		if logger != nil {
			logger.Printf(ctx, "gRPC health: %s -> %s", constants.HealthService, next)
		}
	}

	apply(time.Now())
	for {
		select {
		case <-ctx.Done():
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			healthServer.SetServingStatus(constants.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case now := <-ticker.C:
			apply(now)
		}
	}
}

func servingStatus(freshness domain.Freshness, now time.Time) healthpb.HealthCheckResponse_ServingStatus {
	if freshness.Stale(now) {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func loggingInterceptor(logger *infra.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if logger == nil {
			return resp, err
		}
		if err != nil {
			logger.Printf(ctx, "gRPC %s failed in %s: %v", info.FullMethod, duration, err)
		} else {
			logger.Debugf(ctx, "gRPC %s completed in %s", info.FullMethod, duration)
		}
		return resp, err
	}
}
