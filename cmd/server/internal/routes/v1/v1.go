package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/range-medical/consent-api/cmd/server/internal/ratelimit"
	"github.com/range-medical/consent-api/internal/catalog"
	"github.com/range-medical/consent-api/internal/config"
	"github.com/range-medical/consent-api/internal/pipeline"
	"github.com/range-medical/consent-api/internal/types"
)

var tracer = otel.Tracer(
	"github.com/range-medical/consent-api/cmd/server/internal/routes/v1",
)

// Submitter runs a consent submission through the pipeline.
type Submitter interface {
	Submit(ctx context.Context, form *types.ConsentForm) (*pipeline.Outcome, error)
}

type Handler struct {
	pipeline Submitter
	catalogs *catalog.Set
}

func NewHandler(submitter Submitter, catalogs *catalog.Set) *Handler {
	return &Handler{
		pipeline: submitter,
		catalogs: catalogs,
	}
}

// NewRedisLimiter keys limits on client IP since consent submission is
// anonymous.
func NewRedisLimiter(cfg *config.RateLimitConfig, limiterKey string, perMinute int64) echo.MiddlewareFunc {
	store := ratelimit.NewRedisLimitStore(ratelimit.RedisLimiterConfig{
		RedisClient: redis.NewClient(&redis.Options{Addr: cfg.RedisHost + ":6379"}),
		LimiterKey:  limiterKey,
		PerMinute:   perMinute,
		FailOpen:    cfg.FailOpen,
	})

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(
				http.StatusForbidden,
				types.StringError("unable to rate limit request"),
			)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, types.StringError("rate limited"))
		},
	})
}

func AddRoutes(e *echo.Echo, handler *Handler, cfg *config.Config) {
	group := e.Group("/v1")

	if cfg.RateLimit != nil && cfg.RateLimit.GlobalPerMinute > 0 {
		group.Use(NewRedisLimiter(cfg.RateLimit, "global", cfg.RateLimit.GlobalPerMinute))
	}

	var submitLimiter []echo.MiddlewareFunc
	if cfg.RateLimit != nil && cfg.RateLimit.SubmitPerMinute > 0 {
		submitLimiter = append(
			submitLimiter,
			NewRedisLimiter(cfg.RateLimit, "submit", cfg.RateLimit.SubmitPerMinute),
		)
	}

	group.GET("/ping/", handler.Ping)
	group.GET("/consent/catalog/", handler.GetCatalog)
	group.POST("/consent/", handler.SubmitConsent, submitLimiter...)
}
