package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/pkg/httputil"
)

// Router registers auth HTTP routes
type Router struct {
	handler *AuthHandler
	logger  zerolog.Logger
}

// NewRouter creates a new auth router
func NewRouter(handler *AuthHandler, logger zerolog.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  logger,
	}
}

// RegisterRoutes registers auth routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api/auth")).
		Use(httputil.Recover(r.logger), httputil.AccessLog(r.logger))

	api.GET("/check", r.handler.Check)
	api.GET("/cookie", r.handler.GetCookie)
	api.POST("/cookie", r.handler.SetCookie)

	r.logger.Info().Msg("Auth routes registered")
}
