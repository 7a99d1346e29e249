package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"focusgate/config"
	"focusgate/internal/api"
	"focusgate/internal/blockcache"
	"focusgate/internal/clock"
	"focusgate/internal/core"
	"focusgate/internal/eventbus"
	"focusgate/internal/logging"
	"focusgate/internal/monitor"
	"focusgate/internal/platform"
	"focusgate/internal/prefs"
	"focusgate/internal/scheduler"
	"focusgate/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, refresh triggers and control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logConfig := logging.LoggerConfig{
				Format: cfg.Log.Format,
				Level:  logging.ParseLevel(cfg.Log.Level),
			}
			if logPath != "" {
				file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer file.Close()
				logConfig.Output = file
			}
			logger := logging.NewLogger(logConfig)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&logPath, "log-file", "", "append logs to this file instead of stdout")
	return cmd
}

// serve wires every component and blocks until ctx is cancelled or a component fails
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mainLogger := logger.With("component", "main")
	mainLogger.Info("focusgate starting",
		"database", cfg.Database.Path,
		"address", cfg.Address(),
		"timezone", cfg.Location().String(),
	)

	// Ledger
	db, err := sqlite.New(cfg.Database.Path, cfg.Location())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Block policy cache, seeded from the fallback file until the first rebuild
	fallback := prefs.Open(cfg.Prefs.Path, logger)
	cache := blockcache.New(db, fallback, logger)

	realClock := clock.RealClock{}
	manager := logging.NewSessionManagerLogger(
		core.NewSessionManager(db, realClock, cfg.Location(), logger),
		logger,
	)

	// Event source and monitor
	hub := eventbus.NewHub(cfg.Monitor.QueueSize)
	defer hub.Close()

	mon := monitor.New(monitor.Config{
		SelfPackage: cfg.Monitor.SelfPackage,
		AllowList:   cfg.Monitor.AllowList,
		Debounce:    cfg.Monitor.Debounce,
		QueueSize:   cfg.Monitor.QueueSize,
	}, cache, manager, platform.NewPresenter(logger), realClock, logger)

	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- mon.Run(ctx, hub)
	}()

	poller, err := platform.NewForegroundPoller(hub, cfg.Monitor.PollInterval, logger)
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		mainLogger.Info("No native foreground source; events arrive via POST /v1/events")
	case err != nil:
		return fmt.Errorf("failed to start foreground poller: %w", err)
	default:
		go poller.Run(ctx)
	}

	if err := cfg.Watch(logger, func(next *config.Config) {
		mon.SetAllowList(next.Monitor.AllowList)
	}); err != nil && !errors.Is(err, config.ErrNotWatchable) {
		mainLogger.Warn("Config hot reload disabled", "error", err)
	}

	// Refresh triggers: boot rebuild, periodic rebuild, sweep backstop, midnight usage reset
	sched := scheduler.NewScheduler(cache, manager, db, scheduler.Config{
		RefreshInterval: cfg.Scheduler.RefreshInterval,
		SweepInterval:   cfg.Scheduler.SweepInterval,
		Timezone:        cfg.Location(),
	}, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Control API
	router := api.NewRouter(api.RouterConfig{
		Storage:   db,
		Manager:   manager,
		Refresher: sched,
		Events:    hub,
		Monitor:   mon,
		BlockList: cache,
		Clock:     realClock,
		APIKey:    cfg.Server.APIKey,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		mainLogger.Info("Starting HTTP server", "address", cfg.Address())
		serverErrors <- server.ListenAndServe()
	}()

	var runErr error
	monitorRunning := true
loop:
	for {
		select {
		case err := <-serverErrors:
			runErr = fmt.Errorf("server error: %w", err)
			break loop
		case err := <-monitorDone:
			monitorRunning = false
			if err != nil {
				runErr = fmt.Errorf("monitor error: %w", err)
				break loop
			}
			if ctx.Err() != nil {
				break loop
			}
			// Source went away; the API and lazy expiry keep working
			mainLogger.Warn("Monitor stopped, continuing without interventions")
		case <-ctx.Done():
			mainLogger.Info("Shutdown signal received, starting graceful shutdown")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown error: %w", err)
	}

	mon.Stop()
	if monitorRunning {
		select {
		case <-monitorDone:
		case <-shutdownCtx.Done():
			mainLogger.Warn("Monitor did not drain before shutdown timeout")
		}
	}

	mainLogger.Info("Graceful shutdown complete")
	return runErr
}
