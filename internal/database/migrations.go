package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pms-exporter/internal/infra"
)

const defaultMigrationsDir = "resources/db/migrations"

// ResolveMigrationsDir returns MIGRATIONS_DIR when set, otherwise the
// directory bundled with the repository.
func ResolveMigrationsDir() string {
	if dir := strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")); dir != "" {
		return dir
	}
	return defaultMigrationsDir
}

// ApplyMigrations runs every *.sql file in dir in lexical order. The files
// must be idempotent; there is no applied-migrations table.
func ApplyMigrations(ctx context.Context, runner CommandRunner, dsn, dir string, logger *infra.Logger) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("migrations directory is not specified")
	}

	names, err := migrationFiles(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logger.Warnf(ctx, "no migrations found in %s", dir)
		return nil
	}

	for _, name := range names {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}

		statements := strings.TrimSpace(string(contents))
		if statements == "" {
			logger.Printf(ctx, "skipping empty migration %s", name)
			continue
		}

		logger.Printf(ctx, "applying migration %s", name)
		if _, err := runner.Exec(ctx, dsn, "", statements); err != nil {
			return fmt.Errorf("apply migration %q: %w", name, err)
		}
	}

	logger.Println(ctx, "migrations applied successfully")
	return nil
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
