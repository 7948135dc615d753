package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-lifecycle/internal/observability"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName   string
	version       string
	redis         Pinger
	redisRequired bool
	metrics       *observability.Metrics
	sessions      func() int
}

// HealthOptions configures the health handler.
type HealthOptions struct {
	ServiceName string
	Version     string
	Redis       Pinger
	// RedisRequired makes readiness fail when Redis is unreachable.
	RedisRequired  bool
	Metrics        *observability.Metrics
	ActiveSessions func() int
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{
		serviceName:   opts.ServiceName,
		version:       opts.Version,
		redis:         opts.Redis,
		redisRequired: opts.RedisRequired,
		metrics:       opts.Metrics,
		sessions:      opts.ActiveSessions,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true, "message": "server is running"})
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			depStatus["redis"] = err.Error()
			if h.redisRequired {
				ready = false
			}
		} else {
			depStatus["redis"] = "ok"
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// Metrics handles GET /debug/metrics.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	active := 0
	if h.sessions != nil {
		active = h.sessions()
	}
	return c.JSON(fiber.Map{
		"activeSessions": active,
		"counters":       h.metrics.Snapshot(),
	})
}
