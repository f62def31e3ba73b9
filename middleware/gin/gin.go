// Package gin provides Gin middleware for metered-call gating
package gin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gin.Context) string

// CategoryExtractor extracts the call category from a Gin context
type CategoryExtractor func(c *gin.Context) cvgate.Category

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
	// If nil, aborts with 429 and a JSON body describing the decision
	OnDenied func(c *gin.Context, decision *cvgate.CallDecision)

	// OnUnauthorized is called when user is not authenticated
	// If nil, aborts with 401
	OnUnauthorized func(c *gin.Context)

	// OnError is called when an internal error occurs
	// If nil, aborts with 500
	OnError func(c *gin.Context, err error)
}

// Middleware creates a Gin middleware that meters calls through the gate
func Middleware(cfg Config) gin.HandlerFunc {
	if cfg.Gate == nil {
		panic("cvgate gin middleware: Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("cvgate gin middleware: GetUserID is required")
	}

	return func(c *gin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
			}
			return
		}

		category := cvgate.CategoryGeneral
		if cfg.GetCategory != nil {
			category = cfg.GetCategory(c)
		}

		decision, err := cfg.Gate.CheckAndConsume(c.Request.Context(), userID, category)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
			return
		}

		c.Header("X-Quota-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-Quota-Used", strconv.Itoa(decision.Used))
		c.Header("X-Quota-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, decision)
			} else {
				body := gin.H{
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
				c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
			}
			return
		}

		c.Next()
	}
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromGinContext returns a UserIDExtractor that gets user ID from the
// Gin context, as set by an upstream auth middleware
func FromGinContext(key string) UserIDExtractor {
	return func(c *gin.Context) string {
		if userID, ok := c.Get(key); ok {
			if s, ok := userID.(string); ok {
				return s
			}
		}
		return ""
	}
}

// FixedCategory returns a CategoryExtractor that always returns the same category
func FixedCategory(category cvgate.Category) CategoryExtractor {
	return func(c *gin.Context) cvgate.Category {
		return category
	}
}
