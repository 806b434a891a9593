package repository

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/database"
	"github.com/Conte777/douyin-gateway/internal/repository/memory"
	"github.com/Conte777/douyin-gateway/internal/repository/postgres"
)

// Module provides the login history repository for fx DI
var Module = fx.Module("repository",
	fx.Provide(NewAttemptRepositoryFx),
)

// NewAttemptRepositoryFx stores login history in Postgres when DATABASE_HOST is set
// and in a bounded in-memory list otherwise
func NewAttemptRepositoryFx(
	lc fx.Lifecycle,
	cfg *config.DatabaseConfig,
	logger zerolog.Logger,
) (deps.AttemptRepository, error) {
	if !cfg.Enabled() {
		logger.Info().Int("capacity", memory.DefaultCapacity).Msg("DATABASE_HOST not set, keeping login history in memory")
		return memory.NewLoginAttemptRepository(memory.DefaultCapacity), nil
	}

	db, err := database.NewPostgresDBWithLifecycle(lc, cfg, logger)
	if err != nil {
		return nil, err
	}
	return postgres.NewLoginAttemptRepository(db), nil
}
