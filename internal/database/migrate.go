package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" //nolint:blankimports // File source driver

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
)

// DefaultMigrationsPath is relative to the working directory. In the container it resolves to /app/migrations.
const DefaultMigrationsPath = "migrations"

// Migrator applies the SQL files under a migrations directory.
type Migrator struct {
	m    *migrate.Migrate
	path string
	log  infralogger.Logger
}

// NewMigrator binds the migrations at path to db. The Migrator takes ownership
// of db: Close closes it.
func NewMigrator(db *sql.DB, path string, log infralogger.Logger) (*Migrator, error) {
	if path == "" {
		path = DefaultMigrationsPath
	}
	if absPath, absErr := filepath.Abs(path); absErr == nil {
		path = absPath
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Migrator{m: m, path: path, log: log}, nil
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("No pending migrations", infralogger.String("migrations_path", mg.path))
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	mg.log.Info("Migrations applied successfully", infralogger.String("migrations_path", mg.path))
	return nil
}

// Down rolls back steps migrations, at least one.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}

	if err := mg.m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("No migrations to rollback", infralogger.String("migrations_path", mg.path))
			return nil
		}
		return fmt.Errorf("rollback migrations: %w", err)
	}

	mg.log.Info("Migrations rolled back successfully",
		infralogger.String("migrations_path", mg.path),
		infralogger.Int("steps", steps),
	)
	return nil
}

// Version reports the applied version. A database with no migrations yields 0, false.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force sets the version without running anything, for clearing a dirty state.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force migration version: %w", err)
	}
	mg.log.Info("Migration version forced", infralogger.Int("version", version))
	return nil
}

// Close releases the migration source and the database handle.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}
