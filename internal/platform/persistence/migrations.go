package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationSource accepts a bare directory or a full source URL
func migrationSource(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

// RunMigrations brings the trust ledger schema up to date. A database left
// dirty by an interrupted run is reported rather than forced, since the
// balance functions must not be half installed.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	m, err := migrate.New(migrationSource(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator", "source_error", sourceErr, "database_error", dbErr)
		}
	}()

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("schema is dirty at version %d, fix it manually before starting", version)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Schema already up to date")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if version, _, err := m.Version(); err == nil {
		logger.Info("Schema migrated", "version", version)
	}
	return nil
}
