package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/library-service/cmd/api/config"
	"github.com/library-service/cmd/api/database"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/library"
	"github.com/library-service/cmd/api/mongodb"
)

const disconnectTimeout = 5 * time.Second

/* Opens the store selected by STORE_DRIVER. The returned func releases its connections. */
func openStore(ctx context.Context, cfg config.Config) (library.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store, err := inmemory.NewInMemoryStore()
		if err != nil {
			return nil, nil, err
		}
		slog.Warn("using the in-memory store, records are lost on exit")
		return store, func() {}, nil

	case config.DriverMongoDB:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				slog.Error("disconnecting from mongodb", "error", err)
			}
		}
		return mongodb.NewStore(client, cfg.MongoDatabase), closeFn, nil

	case config.DriverPostgres:
		dbObject, err := database.ConnectDb(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting with db: %w", err)
		}

		//apply migrations:
		store := database.NewStore(dbObject)
		err = database.MigrationUp(store, cfg.MigrationsPath)
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			dbObject.Close()
			return nil, nil, fmt.Errorf("migrating: %w", err)
		}
		return store, func() { dbObject.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
