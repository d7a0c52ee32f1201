package middleware

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "grpc-queue-service/pkg/errors"
	"grpc-queue-service/pkg/logger"
)

// ErrorInterceptor turns handler errors into gRPC statuses. Typed errors keep
// their code and message; anything else is logged and reported as Internal
// without detail.
func ErrorInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		code := apperrors.Code(err)
		l := logger.WithContext(ctx, log).With(zap.String("method", info.FullMethod), zap.Error(err))
		switch code {
		case codes.Internal, codes.Unknown:
			l.Error("grpc request failed")
			return nil, apperrors.ErrInternal.GRPCStatus().Err()
		default:
			l.Warn("grpc request rejected", zap.String("code", code.String()))
			return nil, status.Error(code, err.Error())
		}
	}
}
