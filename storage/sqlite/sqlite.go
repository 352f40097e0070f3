package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"oxbobot/config"
	"oxbobot/pkg/logger"
	"oxbobot/storage"
	"oxbobot/storage/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db  *sql.DB
	log logger.ILogger
}

func New(ctx context.Context, cfg config.Config, log logger.ILogger) (storage.IStorage, error) {
	return Open(ctx, cfg.SQLitePath, cfg.MigrationsPath, log)
}

// Open creates the database file at path if needed, migrates the schema and
// makes sure the policy row exists.
func Open(ctx context.Context, path, migrationsPath string, log logger.ILogger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", filepath.Clean(path)+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, migrationsPath, log); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log}
	if err := s.Policy().EnsureDefault(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("SQLite opened", logger.String("path", path))
	return s, nil
}

func runMigrations(db *sql.DB, migrationsPath string, log logger.ILogger) error {
	src, err := migration.Source(migrationsFS, migrationsPath)
	if err != nil {
		return err
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	// m.Close would close db as well, so only the source is released.
	defer src.Close()

	m, err := migrate.NewWithInstance("migrations", src, "sqlite", driver)
	if err != nil {
		log.Error("migration init error", logger.Error(err))
		return fmt.Errorf("init migrations: %w", err)
	}
	return migration.Up(m, log)
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warning("failed to close database", logger.Error(err))
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) User() storage.IUserStorage     { return NewUserRepo(s.db, s.log) }
func (s *Store) Policy() storage.IPolicyStorage { return NewPolicyRepo(s.db, s.log) }
