package cvgate

import (
	"context"
)

// Store defines the interface for gate persistence.
// All methods use concrete types from this package to avoid import cycles.
type Store interface {
	// ListActivePlans returns all active plans ordered by monthly price
	// ascending, then name.
	ListActivePlans(ctx context.Context) ([]Plan, error)

	// GetPlanByName retrieves a plan by its unique name.
	// Returns ErrPlanNotFound when no such plan exists.
	GetPlanByName(ctx context.Context, name string) (*Plan, error)

	// GetActiveSubscription retrieves the user's active subscription
	// joined to its plan. Returns ErrSubscriptionNotFound when the user
	// has none, and ErrSubscriptionConflict when more than one active
	// row exists.
	GetActiveSubscription(ctx context.Context, userID string) (*Subscription, *Plan, error)

	// GetUsage retrieves the usage counter for a calendar day.
	// Returns nil, nil when no counter exists yet (not an error).
	GetUsage(ctx context.Context, userID string, day Day) (*UsageCounter, error)

	// IncrementUsage atomically creates-if-absent and increments the
	// counter for req.Day, bumping both the total and the category
	// bucket in one step. Two concurrent calls for the same (user, day)
	// must not lose an increment and must not create two rows.
	//
	// When req.Limit > 0 the increment is conditional: it applies only
	// while the pre-increment total is below req.Limit, otherwise the
	// unmodified counter is returned with ErrQuotaExceeded.
	IncrementUsage(ctx context.Context, req *IncrementRequest) (*UsageCounter, error)

	// ListDocuments returns all documents owned by the user, in any
	// order. The ranker sorts; stores only fetch.
	ListDocuments(ctx context.Context, userID string) ([]DocumentRef, error)
}

// IncrementRequest represents an atomic usage increment.
type IncrementRequest struct {
	UserID   string
	Day      Day
	Category Category

	// Limit, when positive, turns the increment into a conditional
	// consume: increment only if TotalCalls < Limit. Zero or negative
	// means unconditional.
	Limit int
}
