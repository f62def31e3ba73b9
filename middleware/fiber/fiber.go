// Package fiber provides Fiber middleware for metered-call gating
package fiber

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// CategoryExtractor extracts the call category from a Fiber context
type CategoryExtractor func(c *fiber.Ctx) cvgate.Category

// Config holds middleware configuration
type Config struct {
	// Gate is the admission gate instance (required)
	Gate *cvgate.Gate

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// GetCategory extracts the call category from context
	// If nil, every request counts under the general category
	GetCategory CategoryExtractor

	// OnDenied is called when the daily quota is exhausted
	// If nil, returns 429 with a JSON body describing the decision
	OnDenied func(c *fiber.Ctx, decision *cvgate.CallDecision) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that meters calls through the gate
func Middleware(cfg Config) fiber.Handler {
	if cfg.Gate == nil {
		panic("cvgate fiber middleware: Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("cvgate fiber middleware: GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		category := cvgate.CategoryGeneral
		if cfg.GetCategory != nil {
			category = cfg.GetCategory(c)
		}

		decision, err := cfg.Gate.CheckAndConsume(c.UserContext(), userID, category)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}

		c.Set("X-Quota-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-Quota-Used", strconv.Itoa(decision.Used))
		c.Set("X-Quota-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			if cfg.OnDenied != nil {
				return cfg.OnDenied(c, decision)
			}
			body := fiber.Map{
				"error":       decision.Message,
				"used":        decision.Used,
				"limit":       decision.Limit,
				"plan":        decision.PlanName,
				"upgradeable": decision.Upgradeable,
			}
			if decision.UpgradeMessage != "" {
				body["upgrade_message"] = decision.UpgradeMessage
			}
			if decision.ResetInfo != "" {
				body["reset_info"] = decision.ResetInfo
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(body)
		}

		return c.Next()
	}
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromLocals returns a UserIDExtractor that gets user ID from Fiber
// locals, as set by an upstream auth middleware
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if userID, ok := c.Locals(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FixedCategory returns a CategoryExtractor that always returns the same category
func FixedCategory(category cvgate.Category) CategoryExtractor {
	return func(c *fiber.Ctx) cvgate.Category {
		return category
	}
}
