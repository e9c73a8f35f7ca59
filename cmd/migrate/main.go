package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"pms-exporter/internal/database"
	"pms-exporter/internal/infra"
)

type migrateCLI struct {
	Dir    string `name:"dir" help:"Directory with SQL migration files."`
	Config string `name:"config" env:"CONFIG_FILE" help:"TOML file overlaid on the environment configuration."`
}

func main() {
	var flags migrateCLI
	kong.Parse(&flags,
		kong.Name("pms-migrate"),
		kong.Description("Applies the pm_readings schema migrations."),
	)
	if flags.Dir == "" {
		flags.Dir = database.ResolveMigrationsDir()
	}

	cfg, logger := initEnvironment(flags.Config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkDatabaseConnection(ctx, cfg, logger)
	runMigrations(ctx, cfg, logger, flags.Dir)
}

// ----------------------------
// Вспомогательные функции
// ----------------------------

// initEnvironment загружает конфигурацию и логгер.
func initEnvironment(configFile string) (infra.Config, *infra.Logger) {
	cfg := infra.LoadConfig()
	logger := infra.NewLogger(os.Stdout, "migrate")
	if configFile != "" {
		loaded, err := infra.LoadConfigFile(configFile, cfg)
		if err != nil {
			logger.Fatalf(context.Background(), "%v", err)
		}
		cfg = loaded
	}
	return cfg, logger
}

// checkDatabaseConnection выполняет проверку соединения с БД.
func checkDatabaseConnection(ctx context.Context, cfg infra.Config, logger *infra.Logger) {
	if !database.ShouldCheckDatabase(cfg) {
		logger.Fatalf(ctx, "database is not configured: set DB_DSN or DB_HOST")
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := database.WaitForDatabase(waitCtx, cfg, logger); err != nil {
		logger.Fatalf(ctx, "database connectivity check failed: %v", err)
	}
}

// runMigrations строит DSN, создаёт runner и применяет миграции.
func runMigrations(ctx context.Context, cfg infra.Config, logger *infra.Logger, migrationsDir string) {
	dsn, err := database.BuildDatabaseDSN(cfg)
	if err != nil {
		logger.Fatalf(ctx, "failed to build database DSN: %v", err)
	}

	runner := database.NewSQLRunner()
	defer runner.Close()

	if err := database.ApplyMigrations(ctx, runner, dsn, migrationsDir, logger); err != nil {
		logger.Fatalf(ctx, "migrate: %v", err)
	}
}
