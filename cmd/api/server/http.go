package server

import (
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"grpc-queue-service/internal/adapter/grpc/gateway"
)

const swaggerSpecURL = "/swagger/queue.swagger.json"

// SetupHTTPGateway creates the REST gateway server in front of conn. It
// also serves the Swagger UI and, when given, the metrics handler.
func SetupHTTPGateway(conn grpc.ClientConnInterface, httpAddr, swaggerPath string, metricsHandler http.Handler, l *zap.Logger) (*http.Server, error) {
	mux, err := gateway.NewServeMux(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to register gateway: %w", err)
	}

	httpMux := http.NewServeMux()

	httpMux.HandleFunc(swaggerSpecURL, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	httpMux.HandleFunc("/swagger/", httpSwagger.Handler(
		httpSwagger.URL(swaggerSpecURL),
	))
	if metricsHandler != nil {
		httpMux.Handle("/metrics", metricsHandler)
	}

	// Everything else goes to the gateway
	httpMux.Handle("/", mux)

	l.Info("REST gateway configured", zap.String("address", httpAddr))

	return &http.Server{
		Addr:              httpAddr,
		Handler:           httpMux,
		ReadHeaderTimeout: 2 * time.Second,
	}, nil
}
