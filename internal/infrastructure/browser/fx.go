package browser

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
)

// Module provides the browser automation driver for fx DI
var Module = fx.Module("browser",
	fx.Provide(NewDriverFx),
)

// NewDriverFx creates the automation driver for fx DI
func NewDriverFx(cfg *config.BrowserConfig, logger zerolog.Logger) deps.AutomationDriver {
	return NewDriver(cfg, logger)
}
