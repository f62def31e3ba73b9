package cvgate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/resumeforge/cvgate/pkg/cvgate"
	"github.com/resumeforge/cvgate/storage/memory"
)

func newTestResolver(t *testing.T) (*cvgate.Resolver, *memory.Store) {
	t.Helper()
	store := memory.New()
	seedPlans(t, store)

	catalog, err := cvgate.NewCatalog(context.Background(), store)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return cvgate.NewResolver(store, catalog), store
}

func TestResolve_FreeFallback(t *testing.T) {
	resolver, _ := newTestResolver(t)

	plan, err := resolver.Resolve(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if plan.Subscribed {
		t.Error("Unsubscribed user should not report Subscribed")
	}
	if plan.Plan.Name != "free" {
		t.Errorf("Expected free plan, got %s", plan.Plan.Name)
	}
	if plan.Subscription != nil {
		t.Error("Free fallback should carry no subscription")
	}

	// Resolving is a pure query; repeating it must not change the answer
	again, err := resolver.Resolve(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if again.Subscribed || again.Plan.Name != "free" {
		t.Errorf("Repeated resolve changed the answer: %+v", again)
	}
}

func TestResolve_ActiveSubscription(t *testing.T) {
	resolver, store := newTestResolver(t)
	subscribe(t, store, "user1", "plan-basic")

	plan, err := resolver.Resolve(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !plan.Subscribed {
		t.Error("Subscribed user should report Subscribed")
	}
	if plan.Plan.Name != "basic" {
		t.Errorf("Expected basic plan, got %s", plan.Plan.Name)
	}
	if plan.Subscription == nil || plan.Subscription.UserID != "user1" {
		t.Errorf("Expected subscription for user1, got %+v", plan.Subscription)
	}
}

func TestResolve_IgnoresInactiveSubscriptions(t *testing.T) {
	resolver, store := newTestResolver(t)
	err := store.SetSubscription(cvgate.Subscription{
		ID:     "sub-old",
		UserID: "user1",
		PlanID: "plan-pro",
		Status: cvgate.StatusCancelled,
	})
	if err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}

	plan, err := resolver.Resolve(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if plan.Plan.Name != "free" {
		t.Errorf("Cancelled subscription should not govern; got %s", plan.Plan.Name)
	}
}

func TestResolve_ConflictPropagates(t *testing.T) {
	resolver, store := newTestResolver(t)
	for _, id := range []string{"sub-a", "sub-b"} {
		err := store.SetSubscription(cvgate.Subscription{
			ID:     id,
			UserID: "user1",
			PlanID: "plan-basic",
			Status: cvgate.StatusActive,
		})
		if err != nil {
			t.Fatalf("SetSubscription failed: %v", err)
		}
	}

	if _, err := resolver.Resolve(context.Background(), "user1"); !errors.Is(err, cvgate.ErrSubscriptionConflict) {
		t.Errorf("Expected ErrSubscriptionConflict, got %v", err)
	}
}
