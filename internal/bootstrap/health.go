package bootstrap

import (
	"github.com/eleven-am/meeting-scribe/internal/health"
	"github.com/eleven-am/meeting-scribe/internal/persist"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redisClient *redis.Client,
	pipeline *Pipeline,
	queue *persist.Queue,
) *health.Handler {
	return health.NewHandler(
		db,
		redisClient,
		pipeline.BatchClassifier,
		pipeline.Buffer,
		pipeline.Pool,
		queue,
		version,
	)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
