package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"grpc-queue-service/cmd/api/app"
	"grpc-queue-service/cmd/api/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application exited with error: %v", err)
	}
}

func run() error {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "."
	}

	configPath := pflag.StringP("config", "c", defaultPath, "directory containing app.env")
	pflag.Parse()

	ctx, stop := server.WithSignal(context.Background())
	defer stop()

	a, err := app.New(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	return a.Run(ctx)
}
