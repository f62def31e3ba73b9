package cvgate

import (
	"context"
	"fmt"
)

// Counter tracks per-user-per-day call usage. Counters are created
// lazily on first increment; a new calendar date simply produces a new
// counter, which is the reset mechanism.
type Counter struct {
	store Store
}

// NewCounter creates a usage counter backed by the given store.
func NewCounter(store Store) *Counter {
	return &Counter{store: store}
}

// Get returns the counter for a calendar day. A user with no recorded
// calls gets a zero-valued counter, not an error.
func (c *Counter) Get(ctx context.Context, userID string, day Day) (*UsageCounter, error) {
	counter, err := c.store.GetUsage(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	if counter == nil {
		return &UsageCounter{
			UserID:     userID,
			Day:        day,
			ByCategory: map[Category]int{},
		}, nil
	}
	return counter, nil
}

// IncrementAndGet atomically creates-if-absent and increments the
// counter, bumping the total and the category bucket by 1, and returns
// the post-increment counter. Concurrent calls for the same (user, day)
// never lose an increment and never create two rows.
func (c *Counter) IncrementAndGet(ctx context.Context, userID string, day Day, category Category) (*UsageCounter, error) {
	return c.increment(ctx, userID, day, category, 0)
}

// ConsumeIfBelow is the quota-aware form of IncrementAndGet: the
// increment applies only while the pre-increment total is below limit.
// At or over the limit it returns the unmodified counter together with
// ErrQuotaExceeded, turning check-then-act into one atomic conditional
// increment.
func (c *Counter) ConsumeIfBelow(ctx context.Context, userID string, day Day, category Category, limit int) (*UsageCounter, error) {
	return c.increment(ctx, userID, day, category, limit)
}

func (c *Counter) increment(ctx context.Context, userID string, day Day, category Category, limit int) (*UsageCounter, error) {
	if category == "" {
		category = CategoryGeneral
	}

	return c.store.IncrementUsage(ctx, &IncrementRequest{
		UserID:   userID,
		Day:      day,
		Category: category,
		Limit:    limit,
	})
}
