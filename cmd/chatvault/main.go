// Package main contains the entrypoint for the chat archive service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valmeida/chatvault/internal/chatlog"
	"github.com/valmeida/chatvault/internal/classifier"
	"github.com/valmeida/chatvault/internal/config"
	"github.com/valmeida/chatvault/internal/database"
	"github.com/valmeida/chatvault/internal/gemini"
	"github.com/valmeida/chatvault/internal/ingest"
	"github.com/valmeida/chatvault/internal/insights"
	"github.com/valmeida/chatvault/internal/logger"
	"github.com/valmeida/chatvault/internal/scheduler"
	"github.com/valmeida/chatvault/internal/server"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, db, clients,
// server, scheduler), handles graceful shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	// Tone classification is optional: without an API key the endpoint
	// answers with an empty tone instead of failing startup.
	var toneClient gemini.Client
	if cfg.Gemini.APIKey != "" {
		toneClient, err = gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini client", "error", err)
			return 1
		}
	} else {
		log.Warn("No Gemini API key configured, tone classification disabled")
	}

	deps := server.Deps{
		Logger:     log,
		Store:      store,
		Ingest:     ingest.NewService(store, log),
		Assembler:  chatlog.NewAssembler(store, log),
		Classifier: classifier.NewClient(cfg.Classify.URL, cfg.Classify.Timeout, log),
		Tone:       toneClient,
		Insights:   insights.NewAggregator(store, log),
	}
	srv := server.NewServer(cfg.Server, deps)

	sched, err := scheduler.NewScheduler(log, cfg.Scheduler, map[string]scheduler.TaskFunc{
		scheduler.SQLMaintenanceTaskName: scheduler.NewSQLMaintenanceTask(store, log),
	})
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer func() {
		if stopErr := sched.Stop(); stopErr != nil {
			log.Error("Failed to stop scheduler", "error", stopErr)
		}
	}()

	log.Info("Starting server...")
	runErr := srv.Run(ctx)
	log.Info("Server run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Server stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Server stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
