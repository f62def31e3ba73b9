package cvgate

import (
	"context"
	"errors"
	"fmt"
)

// Resolver maps a user to their currently effective plan. Pure query:
// resolving never creates a subscription row, and it is safe to call
// repeatedly and concurrently.
type Resolver struct {
	store   Store
	catalog *Catalog
	logger  Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for invariant violations.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a subscription resolver backed by the given store
// and catalog.
func NewResolver(store Store, catalog *Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:   store,
		catalog: catalog,
		logger:  &NoopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the plan catalog backing this resolver.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns the plan currently governing the user: the active
// subscription's plan, or the free plan when no active subscription
// exists. A user with more than one active subscription surfaces
// ErrSubscriptionConflict; that invariant is enforced by storage and its
// violation indicates a bug upstream, so it is logged and propagated,
// never resolved by picking a row.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*EffectivePlan, error) {
	sub, plan, err := r.store.GetActiveSubscription(ctx, userID)
	if err == nil {
		return &EffectivePlan{
			Plan:         *plan,
			Subscribed:   true,
			Subscription: sub,
		}, nil
	}

	if errors.Is(err, ErrSubscriptionConflict) {
		r.logger.Error("subscription invariant violated",
			Field{Key: "user_id", Value: userID},
			Field{Key: "error", Value: err.Error()},
		)
		return nil, err
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("lookup active subscription: %w", err)
	}

	free, err := r.catalog.Free(ctx)
	if err != nil {
		return nil, err
	}
	return &EffectivePlan{Plan: *free}, nil
}
