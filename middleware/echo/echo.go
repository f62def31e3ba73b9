// Package echo provides Echo middleware for metered-call gating
package echo

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// CategoryExtractor extracts the call category from an Echo context
type CategoryExtractor func(c echo.Context) cvgate.Category

// Config holds middleware configuration
type Config struct {
	// Gate is the admission gate instance (required)
	Gate *cvgate.Gate

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// GetCategory extracts the call category from context
	// If nil, every request counts under the general category
	GetCategory CategoryExtractor

	// DeniedStatusCode is the HTTP status code for an exhausted quota
	// Default: 429 (Too Many Requests)
	DeniedStatusCode int

	// OnDenied is called when the daily quota is exhausted
	// If nil, uses default response: DeniedStatusCode JSON with the decision
	OnDenied func(c echo.Context, decision *cvgate.CallDecision) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that meters calls through the gate
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("cvgate echo middleware: Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("cvgate echo middleware: GetUserID is required")
	}
	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusTooManyRequests
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "unauthorized",
				})
			}

			category := cvgate.CategoryGeneral
			if cfg.GetCategory != nil {
				category = cfg.GetCategory(c)
			}

			decision, err := cfg.Gate.CheckAndConsume(c.Request().Context(), userID, category)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "internal server error",
				})
			}

			setQuotaHeaders(c, decision)

			if !decision.Allowed {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, decision)
				}
				return c.JSON(cfg.DeniedStatusCode, deniedBody(decision))
			}

			return next(c)
		}
	}
}

func setQuotaHeaders(c echo.Context, decision *cvgate.CallDecision) {
	h := c.Response().Header()
	h.Set("X-Quota-Limit", strconv.Itoa(decision.Limit))
	h.Set("X-Quota-Used", strconv.Itoa(decision.Used))
	h.Set("X-Quota-Remaining", strconv.Itoa(decision.Remaining))
}

func deniedBody(decision *cvgate.CallDecision) map[string]interface{} {
	body := map[string]interface{}{
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
	return body
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromEchoContext returns a UserIDExtractor that gets user ID from the
// Echo context store, as set by an upstream auth middleware
func FromEchoContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if userID, ok := c.Get(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FixedCategory returns a CategoryExtractor that always returns the same category
func FixedCategory(category cvgate.Category) CategoryExtractor {
	return func(c echo.Context) cvgate.Category {
		return category
	}
}
