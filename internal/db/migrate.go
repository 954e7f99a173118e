package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func newMigrator(connStr string) (*migrate.Migrate, *sql.DB, error) {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration connection: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("create migrate driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, sqlDB, nil
}

// Migrate applies every pending up migration. It is a no-op when the schema is current.
func Migrate(connStr string, log *zap.Logger) error {
	return run(connStr, log, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown reverts every applied migration.
func MigrateDown(connStr string, log *zap.Logger) error {
	return run(connStr, log, func(m *migrate.Migrate) error { return m.Down() })
}

func run(connStr string, log *zap.Logger, step func(*migrate.Migrate) error) error {
	m, sqlDB, err := newMigrator(connStr)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	err = step(m)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", verr)
	}
	if dirty {
		return fmt.Errorf("database is dirty at migration version %d", version)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no new migrations to apply", zap.Uint("version", version))
	} else {
		log.Info("database migrations applied", zap.Uint("version", version))
	}
	return nil
}
