// Package migration applies the embedded schema of a storage backend through
// golang-migrate.
package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"oxbobot/pkg/logger"
)

// Dir is the directory inside each backend's embedded FS holding the .sql files.
const Dir = "migrations"

// Source returns the embedded migrations, or the directory at overridePath
// when it is set.
func Source(embedded fs.FS, overridePath string) (source.Driver, error) {
	if overridePath != "" {
		src, err := (&file.File{}).Open("file://" + overridePath)
		if err != nil {
			return nil, fmt.Errorf("open migrations at %s: %w", overridePath, err)
		}
		return src, nil
	}
	src, err := iofs.New(embedded, Dir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// Up applies pending migrations. An already current schema is not an error.
func Up(m *migrate.Migrate, log logger.ILogger) error {
	fromVer, _, _ := m.Version()

	start := time.Now()
	err := m.Up()
	took := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("no migrations to apply", logger.Int64("version", int64(fromVer)))
		return nil
	default:
		log.Error("migration up error", logger.Error(err))
		return fmt.Errorf("apply migrations: %w", err)
	}

	toVer, dirty, _ := m.Version()
	log.Info("migrations applied",
		logger.Int64("from_version", int64(fromVer)),
		logger.Int64("to_version", int64(toVer)),
		logger.Bool("dirty", dirty),
		logger.String("took", took.String()),
	)
	return nil
}
