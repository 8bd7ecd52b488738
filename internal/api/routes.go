package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"lookup-gateway/internal/observability"
)

// SetupRoutes registers the gateway's admin HTTP surface: health,
// readiness, and Prometheus metrics. The gateway's only real
// entrypoint is the ingress adapter; this server exists purely for
// operators and orchestrators.
func SetupRoutes(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, handlers *Handlers) {
	SetupMiddleware(app, logger)

	app.Get("/healthz", handlers.Health)
	app.Get("/readyz", handlers.Ready)

	app.Get("/metrics", func(c *fiber.Ctx) error {
		registry := prometheus.DefaultGatherer
		metricFamilies, err := registry.Gather()
		if err != nil {
			return c.Status(500).SendString("error gathering metrics")
		}

		c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		for _, mf := range metricFamilies {
			name := mf.GetName()
			for _, m := range mf.GetMetric() {
				switch {
				case m.GetCounter() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s counter\n%s %g\n", name, name, m.GetCounter().GetValue()))
				case m.GetGauge() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s gauge\n%s %g\n", name, name, m.GetGauge().GetValue()))
				case m.GetHistogram() != nil:
					h := m.GetHistogram()
					c.WriteString(fmt.Sprintf("# TYPE %s histogram\n%s_count %d\n%s_sum %g\n",
						name, name, h.GetSampleCount(), name, h.GetSampleSum()))
				}
			}
		}
		return nil
	})
}
