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

	"github.com/golang-migrate/migrate/v4"
	"github.com/library-service/cmd/api/config"
	"github.com/library-service/cmd/api/database"
	libraryhttp "github.com/library-service/cmd/api/http"
	"github.com/library-service/cmd/api/library"
	"github.com/library-service/cmd/api/notifications"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "library-service",
		Short:         "REST backend for users, books and book loans",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(envFile, serve)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(envFile, serve)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(envFile, migrateUp)
		},
	})

	return root
}

/* Loads the configuration, builds the logger and runs fn, logging the error it ends with. */
func runCommand(envFile string, fn func(cfg config.Config, logger *slog.Logger) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := fn(cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		return err
	}
	return nil
}

func serve(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var ntfy library.Notifier
	if cfg.NotificationsEnabled {
		ntfy = notifications.NewNtfy(true, cfg.NotificationsBaseURL, &http.Client{Timeout: cfg.NotificationsTimeout})
	}

	service := library.NewService(repo, ntfy, cfg.NotificationsTimeout, logger)
	handler := libraryhttp.NewHandler(service, cfg.RequestTimeout, logger)

	//create and init http server:
	server := libraryhttp.NewServer(libraryhttp.ServerConfig{Port: cfg.Port, AllowedOrigins: cfg.AllowedOrigins}, handler)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr, "store", cfg.StoreDriver)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownRelease()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	logger.Info("graceful shutdown complete")
	return nil
}

func migrateUp(cfg config.Config, logger *slog.Logger) error {
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("migrations only apply to the %s store, STORE_DRIVER is %s", config.DriverPostgres, cfg.StoreDriver)
	}

	dbObject, err := database.ConnectDb(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting with db: %w", err)
	}
	defer dbObject.Close()

	err = database.MigrationUp(database.NewStore(dbObject), cfg.MigrationsPath)
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("migrations already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	logger.Info("migrations applied", "path", cfg.MigrationsPath)
	return nil
}
