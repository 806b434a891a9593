package cookiestore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
)

// Module provides the configured cookie store for fx DI
var Module = fx.Module("cookiestore",
	fx.Provide(NewCookieStoreFx),
)

// Open builds the store selected by COOKIE_STORE_BACKEND.
// The returned close func releases any connection the store holds.
func Open(cfg *config.CookieStoreConfig, logger zerolog.Logger) (deps.CookieStore, func() error, error) {
	switch cfg.Backend {
	case config.CookieBackendEnv:
		logger.Info().Str("path", cfg.EnvPath).Msg("Using env file cookie store")
		return NewEnvFileStore(cfg.EnvPath, logger), func() error { return nil }, nil

	case config.CookieBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := NewRedisStore(client, cfg.RedisKey, logger)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using redis cookie store")
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cookie store backend %q", cfg.Backend)
	}
}

// NewCookieStoreFx creates the cookie store for fx DI.
// A Redis backend must answer a ping before the app starts.
func NewCookieStoreFx(
	lc fx.Lifecycle,
	cfg *config.CookieStoreConfig,
	logger zerolog.Logger,
) (deps.CookieStore, error) {
	store, closeStore, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if rs, ok := store.(*RedisStore); ok {
				if err := rs.Ping(ctx); err != nil {
					return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return closeStore()
		},
	})

	return store, nil
}
