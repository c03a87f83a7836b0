// Package migrate provides database migration functionality using Goose.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/migrations"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// Module provides the migrator and applies pending migrations on start
// when DB_AUTO_MIGRATE is set.
var Module = fx.Module("migrate",
	fx.Provide(NewMigrator),
	fx.Invoke(RunOnStart),
)

// Migrator handles database migrations.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator creates a Migrator over the bun connection.
func NewMigrator(db *bun.DB) (*Migrator, error) {
	zl, err := logger.NewZap()
	if err != nil {
		return nil, fmt.Errorf("build migrator logger: %w", err)
	}
	return New(db.DB, zl), nil
}

// New creates a Migrator over a raw connection.
func New(db *sql.DB, log *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: log.Named("migrator"),
	}
}

func prepare() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	m.logger.Info("running database migrations")

	if err := prepare(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.logger.Info("migrations completed successfully")
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down(ctx context.Context) error {
	m.logger.Info("rolling back last migration")

	if err := prepare(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	m.logger.Info("rollback completed successfully")
	return nil
}

// Status prints the current migration status.
func (m *Migrator) Status(ctx context.Context) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

// Version returns the current database version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := prepare(); err != nil {
		return 0, err
	}

	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}

	m.logger.Info("database version", zap.Int64("version", version))
	return version, nil
}

// RunOnStart applies pending migrations before the server starts serving.
func RunOnStart(lc fx.Lifecycle, m *Migrator, cfg *config.Config, log *slog.Logger) {
	if !cfg.Database.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := m.Up(ctx); err != nil {
				log.Error("auto-migrate failed", logger.Scope("migrate"), logger.Error(err))
				return err
			}
			return nil
		},
	})
}
