// Package http provides HTTP middleware for metered-call gating
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// CategoryExtractor extracts the call category from an HTTP request
// For example: "chat", "pdf_processing", "ats_analysis"
type CategoryExtractor func(r *http.Request) cvgate.Category

// Config holds middleware configuration
type Config struct {
	// Gate is the admission gate instance (required)
	Gate *cvgate.Gate

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// GetCategory extracts the call category from request
	// If nil, every request counts under the general category
	GetCategory CategoryExtractor

	// OnDenied is called when the daily quota is exhausted
	// If nil, returns 429 with a JSON body describing the decision
	OnDenied func(w http.ResponseWriter, r *http.Request, decision *cvgate.CallDecision)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// DeniedResponse is the default JSON body for a 429 response
type DeniedResponse struct {
	Error          string `json:"error"`
	Used           int    `json:"used"`
	Limit          int    `json:"limit"`
	Plan           string `json:"plan"`
	Upgradeable    bool   `json:"upgradeable"`
	UpgradeMessage string `json:"upgrade_message,omitempty"`
	ResetInfo      string `json:"reset_info,omitempty"`
}

// Middleware creates an HTTP middleware that meters calls through the gate.
// Allowed requests carry X-Quota headers so clients can track usage.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Gate == nil {
		panic("cvgate http middleware: Gate is required")
	}
	if config.GetUserID == nil {
		panic("cvgate http middleware: GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			category := cvgate.CategoryGeneral
			if config.GetCategory != nil {
				category = config.GetCategory(r)
			}

			decision, err := config.Gate.CheckAndConsume(r.Context(), userID, category)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !decision.Allowed {
				if config.OnDenied != nil {
					config.OnDenied(w, r, decision)
				} else {
					writeDenied(w, decision)
				}
				return
			}

			setQuotaHeaders(w, decision)
			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that meters calls (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func setQuotaHeaders(w http.ResponseWriter, decision *cvgate.CallDecision) {
	w.Header().Set("X-Quota-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-Quota-Used", strconv.Itoa(decision.Used))
	w.Header().Set("X-Quota-Remaining", strconv.Itoa(decision.Remaining))
}

func writeDenied(w http.ResponseWriter, decision *cvgate.CallDecision) {
	setQuotaHeaders(w, decision)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(DeniedResponse{
		Error:          decision.Message,
		Used:           decision.Used,
		Limit:          decision.Limit,
		Plan:           decision.PlanName,
		Upgradeable:    decision.Upgradeable,
		UpgradeMessage: decision.UpgradeMessage,
		ResetInfo:      decision.ResetInfo,
	})
}

// Common extractors for convenience

// ContextKey is a type for context keys
type ContextKey string

// UserIDKey is the context key for user ID
const UserIDKey ContextKey = "cvgate:userID"

// FromContext returns a UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FixedCategory returns a CategoryExtractor that always returns the same category
func FixedCategory(category cvgate.Category) CategoryExtractor {
	return func(r *http.Request) cvgate.Category {
		return category
	}
}

// FromCategoryHeader returns a CategoryExtractor that reads the category
// from a header, falling back to general when absent
func FromCategoryHeader(headerName string) CategoryExtractor {
	return func(r *http.Request) cvgate.Category {
		if value := r.Header.Get(headerName); value != "" {
			return cvgate.Category(value)
		}
		return cvgate.CategoryGeneral
	}
}

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
