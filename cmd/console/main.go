package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/relief-tracker/internal/app"
	"github.com/benmeehan/relief-tracker/internal/console"
	"github.com/benmeehan/relief-tracker/internal/dashboard"
	"github.com/benmeehan/relief-tracker/internal/models"
)

// readOnly rejects transitions when the console follows a remote snapshot topic.
type readOnly struct{}

func (readOnly) Apply(context.Context, string, models.Status) (models.Status, error) {
	return "", app.ErrReadOnly
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	envFile := flag.String("env", ".env", "optional env file with secrets")
	flag.Parse()

	bootLogger := app.NewLogger("info", "console", os.Stderr)

	config, err := app.LoadConfig(*configPath, *envFile)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// Logs go to stderr so they do not interleave with the prompt.
	logger := app.NewLogger(config.Log.Level, config.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize console")
	}
	defer a.Close()

	sub, err := a.Feed.Open(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open donation feed")
		return
	}
	defer sub.Close()

	var machine dashboard.Transitioner = readOnly{}
	if a.Machine != nil {
		machine = a.Machine
	}

	session := dashboard.NewSession(config.Operator.AccessCode)
	controller := dashboard.NewController(session, sub, machine, config.Dashboard.Workers, logger)
	defer controller.Close()

	c := console.New(os.Stdin, os.Stdout, session, controller, a.Intake, logger)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Console stopped")
	}
}
