package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/relief-tracker/internal/app"
	"github.com/benmeehan/relief-tracker/internal/service_registry"
	"github.com/benmeehan/relief-tracker/pkg/s3"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	envFile := flag.String("env", ".env", "optional env file with secrets")
	flag.Parse()

	bootLogger := app.NewLogger("info", "json", os.Stdout)

	config, err := app.LoadConfig(*configPath, *envFile)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := app.NewLogger(config.Log.Level, config.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracker")
	}
	defer a.Close()

	var objectStorage s3.ObjectStorageClient
	if config.Services.Archive.Enabled {
		objectStorage = s3.NewObjectStorage()
	}

	serviceRegistry := service_registry.NewServiceRegistry(a.Source, a.Feed, a.MQTT, objectStorage, logger)
	if err := serviceRegistry.RegisterServices(config); err != nil {
		logger.Error().Err(err).Msg("Failed to register services")
		return
	}
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Error().Err(err).Msg("Failed to start services")
		return
	}
	logger.Info().Strs("services", serviceRegistry.Names()).Msg("All services started successfully")

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
	logger.Info().Msg("Tracker stopped")
}
