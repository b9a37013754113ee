package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorhub-api/internal/config"
	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PeriodHandler       *handler.PeriodHandler
	LedgerHandler       *handler.LedgerHandler
	LedgerStreamHandler *handler.LedgerStreamHandler
	StatsHandler        *handler.StatsHandler
	ActivityHandler     *handler.ActivityHandler
	HealthChecks        map[string]handler.HealthCheckFunc
	JWTMiddleware       fiber.Handler
}

// WriteLimiter builds the per-user limiter applied to ledger writes.
func WriteLimiter(cfg config.Config) fiber.Handler {
	return middleware.RateLimit("ledger-writes", cfg.WriteRateLimit, time.Minute)
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.PeriodHandler != nil {
		deps.PeriodHandler.Register(v2.Group("/periods"))
	}

	if deps.LedgerHandler != nil {
		ledger := v2.Group("/ledger")
		if deps.LedgerStreamHandler != nil {
			deps.LedgerStreamHandler.Register(ledger.Group("/stream"))
		}
		deps.LedgerHandler.Register(ledger)
	}

	if deps.StatsHandler != nil {
		deps.StatsHandler.Register(v2.Group("/stats"))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(v2.Group("/activity"))
	}
}
