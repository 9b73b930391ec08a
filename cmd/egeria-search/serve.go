package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odpi/egeria-sub244/internal/api"
	"github.com/odpi/egeria-sub244/internal/config"
	"github.com/odpi/egeria-sub244/internal/db"
	"github.com/odpi/egeria-sub244/internal/ingestion"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/matcher"
	"github.com/odpi/egeria-sub244/internal/repository"
	"github.com/odpi/egeria-sub244/internal/service"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func loadConfig(opts *rootOptions) (config.Config, logging.Logger, error) {
	cfg, found, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, logging.Logger{}, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := logging.NewLogger("egeria-search", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, logging.Logger{}, err
	}
	if found {
		logger.Infow("Loaded config.yaml", "path", opts.configPath)
	} else {
		logger.Infow("No config.yaml found, using defaults and env vars")
	}
	return cfg, logger, nil
}

func openRepository(ctx context.Context, cfg config.Config, logger logging.Logger) (repository.EntityRepository, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Infow("Using in-memory entity store")
		return repository.NewMemoryEntityRepository(matcher.New()), func() {}, nil
	}

	if err := db.RunMigrations(cfg.Database, logger.SugaredLogger); err != nil {
		return nil, nil, err
	}
	conn, err := db.NewConnection(ctx, cfg.Database, logger.SugaredLogger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewEntityRepository(conn, cfg.Search.PlanCacheTTL), conn.Close, nil
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}
	defer closeRepo()

	metrics := service.NewMetrics()
	svc := service.NewSearchService(repo, cfg.Search, logger, metrics)
	router := api.NewRouter(svc, ingestion.NewService(repo, logger), api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("Starting search server", "address", cfg.Server.Address, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}
	logger.Infow("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Infow("Server exited")
	return nil
}
