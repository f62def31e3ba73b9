package cvgate

import (
	"time"
)

// Category identifies the kind of metered call being made.
// The set is open; unknown categories are counted under their own bucket.
type Category string

const (
	// CategoryChat represents assistant chat completions
	CategoryChat Category = "chat"
	// CategoryPDFProcessing represents PDF import/processing calls
	CategoryPDFProcessing Category = "pdf_processing"
	// CategoryATSAnalysis represents ATS compatibility analysis calls
	CategoryATSAnalysis Category = "ats_analysis"
	// CategorySuggestion represents content suggestion calls
	CategorySuggestion Category = "suggestion"
	// CategoryGeneral is the default bucket for uncategorized calls
	CategoryGeneral Category = "general"
)

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusUnpaid    SubscriptionStatus = "unpaid"
)

// BillingCycle is the billing interval of a subscription.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// FreePlanName is the name of the universal fallback plan. Exactly one
// active plan with this name must exist in the catalog.
const FreePlanName = "free"

// Plan is a subscription tier and its limits. Plans are immutable within
// a resolution; limit changes take effect on the next Resolve call.
type Plan struct {
	ID          string
	Name        string // unique key, e.g. "free", "basic", "pro"
	DisplayName string

	DailyCallQuota       int
	MaxEditableDocuments int

	// TopTier marks the highest tier. Exhaustion messaging for a top-tier
	// plan points at the daily reset instead of an upgrade path.
	TopTier bool

	// Active is false for retired plans. Retired plans are hidden from
	// new subscriptions but still referenced by existing ones.
	Active bool

	MonthlyPricePennies int
	YearlyPricePennies  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription binds one user to one plan. Rows are never hard-deleted;
// superseded rows remain for history, with at most one active per user.
type Subscription struct {
	ID     string
	UserID string
	PlanID string

	Status       SubscriptionStatus
	BillingCycle BillingCycle

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time

	CancelAtPeriodEnd bool
	CancelledAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePlan is the plan currently governing a user: their active
// subscription's plan, or the free plan when no active subscription
// exists. Derived on every call, never persisted.
type EffectivePlan struct {
	Plan Plan

	// Subscribed is false when the user is on the free fallback.
	Subscribed   bool
	Subscription *Subscription
}

// UsageCounter is the per-user-per-day call aggregate. A new calendar
// date produces a new counter; that is the reset mechanism.
type UsageCounter struct {
	UserID string

	// Day is the counter's calendar date.
	Day Day

	TotalCalls int
	ByCategory map[Category]int

	UpdatedAt time.Time
}

// Get returns the count for a category (0 when never recorded).
func (c *UsageCounter) Get(category Category) int {
	if c == nil || c.ByCategory == nil {
		return 0
	}
	return c.ByCategory[category]
}

// DocumentRef is a read-only view of a document owned by the external
// document store. The gate never mutates documents; it only reads
// creation order to compute rank.
type DocumentRef struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
}

// DocumentRank is the 1-based position of a document among its owner's
// documents ordered newest-first, and whether that position falls within
// the effective plan's editable window.
type DocumentRank struct {
	DocumentID string
	Position   int
	Limit      int
	Editable   bool
}

// RankedDocument pairs a document with its computed rank.
type RankedDocument struct {
	DocumentRef
	Position int
	Editable bool
}

// AccessSummary describes a user's document-access state for dashboards.
type AccessSummary struct {
	Total         int
	EditableCount int
	ReadOnlyCount int
	Limit         int
	OverLimit     bool
	CanCreateNew  bool
}

// CallDecision is the outcome of a metered-call admission check.
type CallDecision struct {
	Allowed  bool
	Category Category

	Used      int
	Limit     int
	Remaining int

	// PlanName is the display name of the governing plan.
	PlanName string

	// Upgradeable is true when a higher tier exists; always false for
	// top-tier plans, whose denials carry ResetInfo instead.
	Upgradeable bool

	Message        string
	UpgradeMessage string
	ResetInfo      string
}

// EditDecision is the outcome of a document-edit permission check.
type EditDecision struct {
	Allowed bool

	DocumentID string
	Position   int
	Limit      int

	PlanName    string
	Upgradeable bool
	Message     string
}

// CreateDecision is the outcome of a document-creation check.
type CreateDecision struct {
	Allowed bool

	Used      int
	Limit     int
	Remaining int

	PlanName       string
	Upgradeable    bool
	Message        string
	UpgradeMessage string
}

// UsageReport combines call and document usage against the effective
// plan's limits.
type UsageReport struct {
	Day Day

	CallsUsed      int
	CallsLimit     int
	CallsRemaining int

	DocumentsUsed      int
	DocumentsLimit     int
	DocumentsRemaining int
}

// Config holds gate configuration.
type Config struct {
	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking gate operations (default: NoopMetrics)
	Metrics Metrics

	// Clock returns the current time (default: time.Now). Injected by
	// tests to exercise date rollover.
	Clock func() time.Time
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = &NoopLogger{}
	}
	if out.Metrics == nil {
		out.Metrics = &NoopMetrics{}
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}
