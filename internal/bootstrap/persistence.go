package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/meeting-scribe/internal/credentials"
	"github.com/eleven-am/meeting-scribe/internal/persist"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideQueue(cfg *Config, log *slog.Logger) *persist.Queue {
	return persist.NewQueue(persist.QueueConfig{
		Capacity: cfg.QueueCapacity,
		Log:      log,
	})
}

func ProvideStore(db *gorm.DB) *persist.Store {
	return persist.NewStore(db)
}

func ProvideBatchSink(cfg *Config, redisClient *redis.Client) *persist.RedisBatchSink {
	return persist.NewRedisBatchSink(redisClient, cfg.BatchStreamKey)
}

func ProvideCredentialResolver(cfg *Config, redisClient *redis.Client) credentials.Resolver {
	if cfg.KyutaiServerURL != "" {
		return credentials.NewStaticResolver(map[string]credentials.Credential{
			cfg.ProviderName: {
				APIKey:    cfg.KyutaiAPIKey,
				ServerURL: cfg.KyutaiServerURL,
			},
		})
	}
	return credentials.NewRedisResolver(redisClient)
}

func RunMigrations(store *persist.Store) error {
	return store.Migrate()
}

func StartQueue(lc fx.Lifecycle, queue *persist.Queue) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			queue.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			queue.Stop()
			return nil
		},
	})
}

var PersistModule = fx.Options(
	fx.Provide(
		ProvideQueue,
		ProvideStore,
		ProvideBatchSink,
		ProvideCredentialResolver,
	),
	fx.Invoke(RunMigrations, StartQueue),
)
