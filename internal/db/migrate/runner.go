// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"camp-auth/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Run applies migrations for driver ("postgres" or "sqlite") in the given direction.
// For postgres dsn is the DATABASE_URL; for sqlite it is the database file path.
// direction must be "up" or "down". Returns nil on success, including when there is
// nothing to apply; other errors for DB or I/O failures.
func Run(driver, dsn, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	url, err := databaseURL(driver, dsn)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(db.MigrationFS, db.MigrationDir(driver))
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, url)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}
	return nil
}

func databaseURL(driver, dsn string) (string, error) {
	switch driver {
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return "", errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		}
		return dsn, nil
	case "sqlite":
		if strings.TrimSpace(dsn) == "" {
			return "", errors.New("STORE_PATH is not set")
		}
		return "sqlite://" + dsn, nil
	default:
		return "", fmt.Errorf("driver must be postgres or sqlite, got %q", driver)
	}
}
