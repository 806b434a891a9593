package qrauth

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	qrhttp "github.com/Conte777/douyin-gateway/internal/domain/qrauth/delivery/http"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/usecase/business"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/http/server"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/qrlogin"
)

// Module provides QR login components for fx DI
var Module = fx.Module("qrauth",
	fx.Provide(NewQRLoginManagerFx),
	fx.Provide(NewQRAuthUseCaseFx),
	fx.Provide(NewQRAuthHandlerFx),
	fx.Provide(NewQRAuthRouterFx),
	fx.Invoke(RegisterRoutes),
)

// NewQRLoginManagerFx creates the QR login manager for fx DI.
// Live sessions are failed and their browsers released on shutdown.
func NewQRLoginManagerFx(
	lc fx.Lifecycle,
	cfg *config.QRLoginConfig,
	driver deps.AutomationDriver,
	cookieStore deps.CookieStore,
	publisher deps.CredentialPublisher,
	attempts deps.AttemptRepository,
	mt *metrics.Metrics,
	logger zerolog.Logger,
) *qrlogin.Manager {
	manager := qrlogin.NewManager(driver, cookieStore, qrlogin.Settings{
		SessionTTL:      cfg.SessionTTL,
		SetupTimeout:    cfg.SetupTimeout,
		PollTimeout:     cfg.PollTimeout,
		Retention:       cfg.Retention,
		CleanupInterval: cfg.CleanupInterval,
		MaxSessions:     cfg.MaxSessions,
		StartRate:       cfg.StartRate,
		StartBurst:      cfg.StartBurst,
	}, logger,
		qrlogin.WithPublisher(publisher),
		qrlogin.WithAttemptRepository(attempts),
		qrlogin.WithMetrics(mt),
	)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return manager.Close()
		},
	})

	return manager
}

// NewQRAuthUseCaseFx creates a QR auth use case for fx DI
func NewQRAuthUseCaseFx(manager *qrlogin.Manager, logger zerolog.Logger) deps.QRAuthService {
	return business.NewQRAuthUseCase(manager, logger)
}

// NewQRAuthHandlerFx creates a QR auth handler for fx DI
func NewQRAuthHandlerFx(useCase deps.QRAuthService, logger zerolog.Logger) *qrhttp.QRAuthHandler {
	return qrhttp.NewQRAuthHandler(useCase, logger)
}

// NewQRAuthRouterFx creates a QR auth router for fx DI
func NewQRAuthRouterFx(handler *qrhttp.QRAuthHandler, logger zerolog.Logger) *qrhttp.Router {
	return qrhttp.NewRouter(handler, logger)
}

// RegisterRoutes registers QR login routes on the server
func RegisterRoutes(server *server.Server, router *qrhttp.Router) {
	router.RegisterRoutes(server.Router)
}
