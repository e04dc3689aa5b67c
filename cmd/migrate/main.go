// migrate applies the embedded SQL migrations for the configured SQL store driver.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"camp-auth/backend/internal/config"
	"camp-auth/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var dsn string
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		dsn = cfg.DatabaseURL
	case config.StoreDriverSQLite:
		dsn = cfg.StorePath
	default:
		fmt.Fprintf(os.Stderr, "STORE_DRIVER=%s has no schema; migrations apply to postgres and sqlite\n", cfg.StoreDriver)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.StoreDriver, dsn, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
