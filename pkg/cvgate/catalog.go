package cvgate

import (
	"context"
	"fmt"
)

// Catalog provides read access to the plan table. Plan mutation is an
// administrative operation outside the gating path; the catalog reads
// through to storage on every call so that limit changes take effect on
// the next resolution.
type Catalog struct {
	store Store
}

// NewCatalog creates a plan catalog and verifies the deployment
// invariant that an active plan named "free" exists. A missing free plan
// is unrecoverable: callers must treat ErrFreePlanMissing as fatal.
func NewCatalog(ctx context.Context, store Store) (*Catalog, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}

	c := &Catalog{store: store}
	if _, err := c.Free(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ListActive returns all active plans.
func (c *Catalog) ListActive(ctx context.Context) ([]Plan, error) {
	plans, err := c.store.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active plans: %w", err)
	}
	return plans, nil
}

// GetByName retrieves a plan by its unique name.
// Returns ErrPlanNotFound for unknown names.
func (c *Catalog) GetByName(ctx context.Context, name string) (*Plan, error) {
	return c.store.GetPlanByName(ctx, name)
}

// Free returns the active free plan, the universal fallback for users
// without a subscription. Returns ErrFreePlanMissing when the invariant
// is violated.
func (c *Catalog) Free(ctx context.Context) (*Plan, error) {
	plan, err := c.store.GetPlanByName(ctx, FreePlanName)
	if err == ErrPlanNotFound {
		return nil, ErrFreePlanMissing
	}
	if err != nil {
		return nil, fmt.Errorf("get free plan: %w", err)
	}
	if !plan.Active {
		return nil, ErrFreePlanMissing
	}
	return plan, nil
}
