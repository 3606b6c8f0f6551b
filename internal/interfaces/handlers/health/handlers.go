package health

import (
	"context"

	healthsvc "agribid-backend/internal/application/health"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb *redis.Client
	DB  healthsvc.DBPinger
}

// JSON GET /health/json — dependency pings, runtime and traffic stats.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(context.Background(), h.Rdb, h.DB)
	return c.JSON(map[string]interface{}{
		"service":      "agribid-api",
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"dependencies": result.Dependencies,
	})
}
