package app

import (
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/auth"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth"
	"github.com/Conte777/douyin-gateway/internal/infrastructure"
	"github.com/Conte777/douyin-gateway/internal/repository"
)

// CreateApp creates the fx application options
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),
		infrastructure.Module,
		repository.Module,
		// Domain modules
		auth.Module,
		qrauth.Module,
	)
}
