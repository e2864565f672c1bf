package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int // Max requests per minute for all API endpoints
	GlobalAPIExpiration time.Duration

	// Classification limits (per IP). Each request costs a model round trip.
	ClassifyMax        int
	ClassifyExpiration time.Duration

	// Proposal limits (per IP). Each proposal scans a whole scope.
	ProposeMax        int
	ProposeExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 120/min = 2 req/sec
		GlobalAPIMax:        120,
		GlobalAPIExpiration: 1 * time.Minute,

		// Classification: 30/min, the upstream model is the bottleneck
		ClassifyMax:        30,
		ClassifyExpiration: 1 * time.Minute,

		// Proposals: 10/min, each one aggregates the full scope
		ProposeMax:        10,
		ProposeExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	cfg := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_GLOBAL"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.GlobalAPIMax = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_CLASSIFY"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.ClassifyMax = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_PROPOSE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.ProposeMax = parsed
		}
	}

	return cfg
}

func limitReached(c *fiber.Ctx) error {
	log.Printf("🛡️ [RATE-LIMIT] %s exceeded limit on %s", c.IP(), c.Path())
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": "Rate limit exceeded, slow down",
	})
}

// GlobalAPIRateLimiter limits all API traffic per IP.
func GlobalAPIRateLimiter(cfg *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          cfg.GlobalAPIMax,
		Expiration:   cfg.GlobalAPIExpiration,
		LimitReached: limitReached,
	})
}

// ClassifyRateLimiter limits the classification endpoints per IP.
func ClassifyRateLimiter(cfg *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          cfg.ClassifyMax,
		Expiration:   cfg.ClassifyExpiration,
		LimitReached: limitReached,
	})
}

// ProposeRateLimiter limits hierarchy proposals per IP.
func ProposeRateLimiter(cfg *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          cfg.ProposeMax,
		Expiration:   cfg.ProposeExpiration,
		LimitReached: limitReached,
	})
}
