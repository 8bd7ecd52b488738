package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

// SetupMiddleware wires the admin server's cross-cutting concerns:
// panic recovery, request IDs, CORS, and structured request logging.
// There's no client auth and no per-request rate limiting here — the
// admin surface is operator-facing, not public.
func SetupMiddleware(app *fiber.App, logger *zap.Logger) {
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
	}))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Get("X-Request-ID")),
		)

		return err
	})
}
