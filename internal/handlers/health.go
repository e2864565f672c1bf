package handlers

import (
	"context"
	"time"

	"taxotree/internal/database"
	"taxotree/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongodb *database.MongoDB
	redis   *services.RedisService
}

// NewHealthHandler creates a new health handler. redis may be nil.
func NewHealthHandler(mongodb *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{mongodb: mongodb, redis: redis}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	mongoStatus := "up"
	if err := h.mongodb.Ping(ctx); err != nil {
		status = "degraded"
		mongoStatus = "down"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "up"
		if err := h.redis.Ping(ctx); err != nil {
			status = "degraded"
			redisStatus = "down"
		}
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"mongodb":   mongoStatus,
		"redis":     redisStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
