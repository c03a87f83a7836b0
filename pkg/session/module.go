package session

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

var Module = fx.Module("session",
	fx.Provide(NewStore),
)

// NewStore builds the Store selected by SESSION_BACKEND.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (Store, error) {
	log = log.With(logger.Scope("session"))

	if !cfg.Session.UseRedis() {
		log.Info("session store: memory")
		return NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	store := NewRedisStore(client, cfg.Session.RedisPrefix)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				log.Error("redis ping failed", slog.String("addr", cfg.Session.RedisAddr), logger.Error(err))
				return err
			}
			log.Info("session store: redis", slog.String("addr", cfg.Session.RedisAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return store, nil
}
