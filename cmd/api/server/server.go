package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	ginhandler "grpc-queue-service/internal/adapter/gin/handler"
	ginrouter "grpc-queue-service/internal/adapter/gin/router"
	"grpc-queue-service/internal/adapter/grpc/middleware"
	"grpc-queue-service/internal/adapter/metrics"
	"grpc-queue-service/internal/config"
	"grpc-queue-service/internal/usecase/queue"
)

// Deps are the application services the servers expose.
type Deps struct {
	QueueUC     queue.Service
	RateLimiter *middleware.RateLimiter
	GinHandler  *ginhandler.QueueHandler
	Metrics     *metrics.Recorder
}

// Server runs the gRPC server, the REST gateway and the Gin API.
type Server struct {
	Config *config.Config
	Logger *zap.Logger
	GRPC   *grpc.Server
	HTTP   *http.Server
	Gin    *http.Server

	deps        Deps
	gatewayConn *grpc.ClientConn
}

// New creates a new server instance
func New(cfg *config.Config, l *zap.Logger, deps Deps) *Server {
	return &Server{
		Config: cfg,
		Logger: l,
		GRPC:   SetupGRPC(deps.QueueUC, l, deps.RateLimiter),
		Gin: SetupGinServer(deps.GinHandler, ginrouter.Options{
			RateLimiter:    deps.RateLimiter,
			Metrics:        deps.Metrics,
			MetricsHandler: deps.Metrics.Handler(),
			AllowedOrigins: cfg.App.CORSAllowedOrigins,
		}, ":"+cfg.App.GinPort, l),
		deps: deps,
	}
}

// Run serves until ctx is canceled or a server fails, then shuts every
// server down.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.grpcAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.grpcAddress(), err)
	}

	s.gatewayConn, err = grpc.NewClient("localhost:"+s.Config.App.GRPCPort,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("failed to dial gRPC for gateway: %w", err)
	}

	s.HTTP, err = SetupHTTPGateway(s.gatewayConn, ":"+s.Config.App.HTTPPort, s.Config.App.SwaggerPath, s.deps.Metrics.Handler(), s.Logger)
	if err != nil {
		_ = lis.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Logger.Info("gRPC server running", zap.String("address", s.grpcAddress()))
		if err := s.GRPC.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.Logger.Info("REST gateway running", zap.String("address", s.HTTP.Addr))
		return listen(s.HTTP, "REST gateway")
	})
	g.Go(func() error {
		s.Logger.Info("Gin REST API running", zap.String("address", s.Gin.Addr))
		return listen(s.Gin, "Gin server")
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func listen(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// shutdown stops the HTTP servers first so in-flight gateway calls can
// still reach gRPC.
func (s *Server) shutdown() error {
	timeout := time.Duration(s.Config.App.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.Logger.Info("starting graceful shutdown", zap.Duration("timeout", timeout))

	var errs []error
	for name, srv := range map[string]*http.Server{"HTTP": s.HTTP, "Gin": s.Gin} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("failed to shutdown server", zap.String("server", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s shutdown: %w", name, err))
		}
	}

	if s.gatewayConn != nil {
		_ = s.gatewayConn.Close()
	}

	stopped := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.Logger.Warn("gRPC graceful stop timed out, forcing stop")
		s.GRPC.Stop()
	}

	return errors.Join(errs...)
}

func (s *Server) grpcAddress() string {
	return ":" + s.Config.App.GRPCPort
}
