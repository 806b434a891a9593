package platform

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/auth/deps"
)

// Module provides the platform verifier for fx DI
var Module = fx.Module("platform",
	fx.Provide(NewVerifierFx),
)

// NewVerifierFx creates the credential verifier for fx DI
func NewVerifierFx(cfg *config.PlatformConfig, logger zerolog.Logger) deps.CredentialVerifier {
	client := &fasthttp.Client{
		Name:                     cfg.UserAgent,
		ReadTimeout:              cfg.Timeout,
		WriteTimeout:             cfg.Timeout,
		MaxIdleConnDuration:      time.Minute,
		NoDefaultUserAgentHeader: true,
	}
	return NewVerifier(client, cfg.BaseURL, cfg.UserAgent, cfg.Timeout, cfg.RequiredCookies, logger)
}
