package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/postgres"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runMigrationsWithConfig(cmd.Context(), cfg, log)
		},
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.Info("database schema up to date")
		return nil
	}
	log.Info("migrations applied", zap.String("group", group.String()))
	return nil
}
