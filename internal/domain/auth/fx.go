package auth

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	authhttp "github.com/Conte777/douyin-gateway/internal/domain/auth/delivery/http"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/deps"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/usecase/business"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/http/server"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/metrics"
)

// Module provides credential check and management components for fx DI
var Module = fx.Module("auth",
	fx.Provide(NewAuthUseCaseFx),
	fx.Provide(NewAuthHandlerFx),
	fx.Provide(NewAuthRouterFx),
	fx.Invoke(RegisterRoutes),
)

// NewAuthUseCaseFx creates an auth use case for fx DI
func NewAuthUseCaseFx(
	store deps.CookieStore,
	verifier deps.CredentialVerifier,
	mt *metrics.Metrics,
	logger zerolog.Logger,
) deps.AuthService {
	return business.NewAuthUseCase(store, verifier, mt, logger)
}

// NewAuthHandlerFx creates an auth handler for fx DI
func NewAuthHandlerFx(useCase deps.AuthService, logger zerolog.Logger) *authhttp.AuthHandler {
	return authhttp.NewAuthHandler(useCase, logger)
}

// NewAuthRouterFx creates an auth router for fx DI
func NewAuthRouterFx(handler *authhttp.AuthHandler, logger zerolog.Logger) *authhttp.Router {
	return authhttp.NewRouter(handler, logger)
}

// RegisterRoutes registers auth routes on the server
func RegisterRoutes(server *server.Server, router *authhttp.Router) {
	router.RegisterRoutes(server.Router)
}
