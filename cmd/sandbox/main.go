package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/medcare-vn/medcare-mobile/internal/config"
	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/internal/sandbox"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting medcare sandbox backend",
		"env", cfg.Env,
		"port", cfg.SandboxPort,
	)

	reg := prometheus.NewRegistry()
	data := sandbox.NewData(time.Now().In(cfg.Location()))
	handler := sandbox.NewHandler(data, sandbox.Options{
		JWTSecret: cfg.SandboxJWTSecret,
		PublicURL: cfg.SandboxPublicURL,
		Metrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:  reg,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.SandboxPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Sandbox exited gracefully")
}
