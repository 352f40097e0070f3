package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"oxbobot/config"
	"oxbobot/pkg/logger"
	"oxbobot/storage"
	"oxbobot/storage/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
	log  logger.ILogger
}

// URL builds the connection string shared by pgx and the migrator.
func URL(cfg config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresDB,
	)
}

func New(ctx context.Context, cfg config.Config, log logger.ILogger) (storage.IStorage, error) {
	return Open(ctx, URL(cfg), cfg.MigrationsPath, log)
}

// Open connects to url, migrates the schema and makes sure the policy row exists.
func Open(ctx context.Context, url, migrationsPath string, log logger.ILogger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		log.Error("error while parsing Postgres config", logger.Error(err))
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("failed to connect Postgres", logger.Error(err))
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.Error("failed to ping Postgres", logger.Error(err))
		return nil, err
	}

	if err := runMigrations(url, migrationsPath, log); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, log: log}
	if err := s.Policy().EnsureDefault(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Postgres connected")
	return s, nil
}

func runMigrations(url, migrationsPath string, log logger.ILogger) error {
	src, err := migration.Source(migrationsFS, migrationsPath)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("migrations", src, url)
	if err != nil {
		log.Error("migration init error", logger.Error(err))
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	return migration.Up(m, log)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) User() storage.IUserStorage     { return NewUserRepo(s.pool, s.log) }
func (s *Store) Policy() storage.IPolicyStorage { return NewPolicyRepo(s.pool, s.log) }
