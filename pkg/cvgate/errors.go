package cvgate

import "errors"

var (
	// ErrFreePlanMissing is returned at startup when the catalog has no
	// active plan named "free". Unrecoverable; callers must abort
	// initialization.
	ErrFreePlanMissing = errors.New("no active free plan in catalog")

	// ErrPlanNotFound is returned for an unknown plan name
	ErrPlanNotFound = errors.New("plan not found")

	// ErrSubscriptionConflict is returned when a user has more than one
	// active subscription. This indicates a bug in the storage layer and
	// is never silently resolved by picking a row.
	ErrSubscriptionConflict = errors.New("multiple active subscriptions for user")

	// ErrSubscriptionNotFound is returned by stores when a user has no
	// active subscription. The resolver maps it to the free fallback.
	ErrSubscriptionNotFound = errors.New("no active subscription")

	// ErrQuotaExceeded is returned when a conditional increment finds the
	// daily quota already consumed
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrDocumentNotFound is returned when a document does not exist or
	// is not owned by the requesting user
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
