package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/config"
	"github.com/e7canasta/senyas-gesture/internal/logging"
	"github.com/e7canasta/senyas-gesture/internal/service"
)

const defaultConfigPath = "config/senyas.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger, err := logging.NewLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting senyas service",
		zap.String("config", *configPath),
		zap.Bool("debug", *debug),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	svc, err := service.New(cfg, logger, service.Overrides{})
	if err != nil {
		logger.Fatal("failed to create senyas service", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Run(ctx)
	}()

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("service error", zap.Error(err))
			exitCode = 1
		}
	}

	shutdownTimeout := svc.ShutdownTimeout()
	logger.Info("shutting down gracefully", zap.Duration("timeout", shutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		exitCode = 1
	}

	if exitCode != 0 {
		logger.Sync() //nolint:errcheck
		os.Exit(exitCode)
	}
	logger.Info("senyas service stopped successfully")
}
