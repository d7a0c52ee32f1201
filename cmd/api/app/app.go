package app

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"

	"grpc-queue-service/cmd/api/di"
	"grpc-queue-service/cmd/api/server"
	"grpc-queue-service/internal/config"
	"grpc-queue-service/pkg/logger"
)

// App represents the application
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Server    *server.Server
	Container *di.Container
}

// New loads configuration from configPath and wires the application.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	srv := server.New(cfg, l, server.Deps{
		QueueUC:     container.QueueUC,
		RateLimiter: container.RateLimiter,
		GinHandler:  container.GinHandler,
		Metrics:     container.Metrics,
	})

	return &App{
		Config:    cfg,
		Logger:    l,
		Server:    srv,
		Container: container,
	}, nil
}

// Run serves until ctx is canceled, then releases every resource.
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("starting application",
		zap.String("service", a.Config.Logger.ServiceName),
		zap.String("version", a.Config.Logger.ServiceVersion),
		zap.String("environment", a.Config.App.Env),
		zap.String("queue_store", a.Config.Queue.Store),
	)

	runErr := a.Server.Run(ctx)

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := a.Container.Close(); err != nil {
		a.Logger.Error("failed to close container", zap.Error(err))
		errs = append(errs, fmt.Errorf("container close: %w", err))
	}

	a.Logger.Info("application shutdown complete")

	// stdout and stderr cannot be synced on most platforms
	if err := a.Logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		errs = append(errs, fmt.Errorf("logger sync: %w", err))
	}

	return errors.Join(errs...)
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(loggerConfig(cfg))
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:          cfg.Logger.Level,
		Format:         cfg.Logger.Format,
		OutputPath:     cfg.Logger.OutputPath,
		EnableSampling: cfg.Logger.EnableSampling,
		ServiceName:    cfg.Logger.ServiceName,
		ServiceVersion: cfg.Logger.ServiceVersion,
		Environment:    cfg.App.Env,
		MaxSizeMB:      cfg.Logger.MaxSizeMB,
		MaxBackups:     cfg.Logger.MaxBackups,
		MaxAgeDays:     cfg.Logger.MaxAgeDays,
	}
}
