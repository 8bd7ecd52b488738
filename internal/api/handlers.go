package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"lookup-gateway/internal/gateway"
)

// Handlers serves the admin HTTP surface: health, readiness, and a
// small operational snapshot. Metrics are served separately via the
// Prometheus handler registered in routes.go.
type Handlers struct {
	logger  *zap.Logger
	gateway *gateway.Gateway
}

func NewHandlers(logger *zap.Logger, gw *gateway.Gateway) *Handlers {
	return &Handlers{logger: logger, gateway: gw}
}

// Health reports liveness unconditionally once the process is serving
// HTTP at all.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "time": time.Now().Unix()})
}

// Ready reports the current queue depth alongside a "ready" status.
// The status is always "ready"; a saturated queue is not reported as
// not-ready.
func (h *Handlers) Ready(c *fiber.Ctx) error {
	depth := h.gateway.QueueDepth()
	return c.JSON(fiber.Map{"status": "ready", "queue_depth": depth})
}
