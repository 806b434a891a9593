package infrastructure

import (
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/internal/infrastructure/browser"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/cookiestore"
	httpfx "github.com/Conte777/douyin-gateway/internal/infrastructure/http"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/kafka"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/logger"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/platform"
)

// Module aggregates all infrastructure modules
var Module = fx.Module("infrastructure",
	logger.Module,
	metrics.Module,
	cookiestore.Module,
	browser.Module,
	platform.Module,
	kafka.Module,
	httpfx.Module,
)
