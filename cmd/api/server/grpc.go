package server

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcadapter "grpc-queue-service/internal/adapter/grpc"
	"grpc-queue-service/internal/adapter/grpc/middleware"
	"grpc-queue-service/internal/adapter/grpc/queuepb"
	"grpc-queue-service/internal/usecase/queue"
	"grpc-queue-service/pkg/logger"
)

// SetupGRPC creates the gRPC server with the queue and health services.
func SetupGRPC(uc queue.Service, l *zap.Logger, rateLimiter *middleware.RateLimiter) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logger.RequestIDInterceptor(),
			logger.UnaryLoggingInterceptor(l),
			middleware.ErrorInterceptor(l),
			rateLimiter.UnaryInterceptor(),
			middleware.IdentityInterceptor(),
		),
	)
	queuepb.RegisterQueueServiceServer(grpcServer, grpcadapter.NewQueueServiceServer(uc, l))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(queuepb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer
}
