package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/pkg/httputil"
)

// Router registers QR login HTTP routes
type Router struct {
	handler *QRAuthHandler
	logger  zerolog.Logger
}

// NewRouter creates a new QR auth router
func NewRouter(handler *QRAuthHandler, logger zerolog.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  logger,
	}
}

// RegisterRoutes registers QR login routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api/auth")).
		Use(httputil.Recover(r.logger), httputil.AccessLog(r.logger))

	api.GET("/qrcode", r.handler.GetQRCode)
	api.GET("/qrcode/status", r.handler.GetStatus)
	api.GET("/qrcode/history", r.handler.History)
	api.DELETE("/qrcode/{token}", r.handler.Cancel)

	r.logger.Info().Msg("QR login routes registered")
}
