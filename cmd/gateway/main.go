package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"lookup-gateway/internal/api"
	"lookup-gateway/internal/audit"
	"lookup-gateway/internal/breaker"
	"lookup-gateway/internal/cache"
	"lookup-gateway/internal/config"
	"lookup-gateway/internal/gateway"
	"lookup-gateway/internal/ingress"
	"lookup-gateway/internal/observability"
	"lookup-gateway/internal/queue"
	"lookup-gateway/internal/quota"
	"lookup-gateway/internal/rate"
	"lookup-gateway/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger := observability.GetLoggerFromEnv(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting lookup gateway", zap.String("log_level", cfg.LogLevel))

	// The gateway records into metrics unconditionally, so the
	// collectors always exist; METRICS_ENABLED gates the otel pipeline.
	metrics := observability.NewMetrics()
	if cfg.MetricsEnabled {
		shutdownOtel, err := observability.SetupOpenTelemetry("lookup-gateway", logger)
		if err != nil {
			logger.Warn("failed to set up opentelemetry", zap.Error(err))
		} else {
			defer shutdownOtel()
		}
	}

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	kvCache, err := cache.Open(cfg.CacheDBPath, cfg.CacheTTLSeconds, logger)
	if err != nil {
		logger.Fatal("failed to open cache", zap.Error(err))
	}
	defer kvCache.Close()

	trail, err := audit.Open(ctx, cfg.AuditDatabaseURL, "migrations", logger)
	if err != nil {
		logger.Fatal("failed to open audit trail", zap.Error(err))
	}
	defer trail.Close()

	br := breaker.New(logger)
	limiter := rate.NewLimiter(logger, cfg.RateMaxActions, cfg.RateWindowSeconds)
	quotaGate := quota.New(logger, cfg.UserQuotaPerHour)
	jobQueue := queue.New(cfg.QueueMaxSize, logger)

	driver := upstream.NewDriver(cfg.TGAPIID, cfg.TGAPIHash, cfg.TGSessionName, cfg.BotUsername, upstream.Config{
		MinControls:           cfg.MinControls,
		EditWatchTimeout:      cfg.EditWatchTimeout,
		EditWatchQuietTimeout: cfg.EditWatchQuietTimeout,
		CollectTimeout:        cfg.CollectTimeout,
		CollectIdleTimeout:    cfg.CollectIdleTimeout,
		CollectMaxEvents:      cfg.CollectMaxEvents,
	}, logger)

	stopDriver, err := driver.Connect(ctx)
	if err != nil {
		logger.Fatal("failed to connect upstream driver", zap.Error(err))
	}
	defer stopDriver()

	gw := gateway.New(gateway.Config{
		SendDelayMin:      cfg.SendDelayMin,
		SendDelayMax:      cfg.SendDelayMax,
		FloodWaitBuffer:   cfg.FloodWaitBufferSeconds,
		PeerFloodCooldown: cfg.PeerFloodCooldownSeconds,
		DefaultTimeout:    cfg.DefaultTimeout,
	}, jobQueue, kvCache, quotaGate, br, limiter, driver, trail, metrics, nil, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	gw.Start(runCtx)
	defer gw.Stop()

	// The ingress front-end (the Telegram Bot API client that would
	// deliver OnText/OnDocument calls as CONTROL_BOT_TOKEN messages
	// arrive) is an external collaborator outside this repo's scope;
	// ingress.Memory stands in so the handler wiring below is real and
	// exercised even with no adapter attached yet.
	front := ingress.NewMemory()
	_ = gateway.NewHandler(gw, front, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("fiber error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})

	handlers := api.NewHandlers(logger, gw)
	api.SetupRoutes(app, logger, metrics, handlers)

	go func() {
		if err := app.Listen(cfg.AdminAddr); err != nil {
			logger.Error("admin server stopped", zap.Error(err))
		}
	}()

	logger.Info("lookup gateway started", zap.String("admin_addr", cfg.AdminAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down lookup gateway")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shut down admin server gracefully", zap.Error(err))
	}

	logger.Info("lookup gateway stopped")
}
