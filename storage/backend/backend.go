// Package backend picks the storage implementation named by the configuration.
package backend

import (
	"context"
	"fmt"

	"oxbobot/config"
	"oxbobot/pkg/logger"
	"oxbobot/storage"
	"oxbobot/storage/postgres"
	"oxbobot/storage/sqlite"
)

func Open(ctx context.Context, cfg config.Config, log logger.ILogger) (storage.IStorage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg, log)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
