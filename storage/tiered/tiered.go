// Package tiered provides a Hot/Cold tiered store that layers fast
// ephemeral caching (Hot) over durable persistent storage (Cold).
//
// Strategies per operation type:
//   - Read-Through with TTL: plans, subscriptions, documents (Hot → Cold)
//   - Cold-Only: usage counters. The conditional increment must be a
//     single atomic step in one backend, so counters never touch Hot.
package tiered

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// Config configures the tiered store behavior
type Config struct {
	// Cold is the durable source of truth (e.g., Postgres)
	Cold cvgate.Store

	// CatalogTTL bounds how stale cached plans may be.
	// Default: 5 minutes
	CatalogTTL time.Duration

	// SubscriptionTTL bounds how stale a cached subscription may be. A
	// plan change becomes visible at most this long after it lands in
	// Cold. Default: 30 seconds
	SubscriptionTTL time.Duration

	// DocumentTTL bounds how stale a cached document list may be.
	// Default: 10 seconds
	DocumentTTL time.Duration

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// Store implements cvgate.Store with read-through caching over a
// durable backend
type Store struct {
	cold cvgate.Store
	conf Config

	mu            sync.RWMutex
	plans         *plansEntry
	plansByName   map[string]*planEntry
	subscriptions map[string]*subscriptionEntry
	documents     map[string]*documentsEntry
}

type plansEntry struct {
	plans   []cvgate.Plan
	expires time.Time
}

type planEntry struct {
	plan    *cvgate.Plan
	err     error
	expires time.Time
}

type subscriptionEntry struct {
	sub     *cvgate.Subscription
	plan    *cvgate.Plan
	err     error
	expires time.Time
}

type documentsEntry struct {
	docs    []cvgate.DocumentRef
	expires time.Time
}

// New creates a tiered store over the given durable backend
func New(config Config) (*Store, error) {
	if config.Cold == nil {
		return nil, errors.New("tiered store: cold storage is required")
	}
	if config.CatalogTTL <= 0 {
		config.CatalogTTL = 5 * time.Minute
	}
	if config.SubscriptionTTL <= 0 {
		config.SubscriptionTTL = 30 * time.Second
	}
	if config.DocumentTTL <= 0 {
		config.DocumentTTL = 10 * time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Store{
		cold:          config.Cold,
		conf:          config,
		plansByName:   make(map[string]*planEntry),
		subscriptions: make(map[string]*subscriptionEntry),
		documents:     make(map[string]*documentsEntry),
	}, nil
}

// ListActivePlans implements cvgate.Store with read-through caching
func (s *Store) ListActivePlans(ctx context.Context) ([]cvgate.Plan, error) {
	now := s.conf.Clock()

	s.mu.RLock()
	cached := s.plans
	s.mu.RUnlock()
	if cached != nil && now.Before(cached.expires) {
		out := make([]cvgate.Plan, len(cached.plans))
		copy(out, cached.plans)
		return out, nil
	}

	plans, err := s.cold.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	stored := make([]cvgate.Plan, len(plans))
	copy(stored, plans)
	s.mu.Lock()
	s.plans = &plansEntry{plans: stored, expires: now.Add(s.conf.CatalogTTL)}
	s.mu.Unlock()

	return plans, nil
}

// GetPlanByName implements cvgate.Store with read-through caching.
// ErrPlanNotFound is cached too, so a misconfigured plan name cannot
// hammer Cold.
func (s *Store) GetPlanByName(ctx context.Context, name string) (*cvgate.Plan, error) {
	now := s.conf.Clock()

	s.mu.RLock()
	cached := s.plansByName[name]
	s.mu.RUnlock()
	if cached != nil && now.Before(cached.expires) {
		if cached.err != nil {
			return nil, cached.err
		}
		planCopy := *cached.plan
		return &planCopy, nil
	}

	plan, err := s.cold.GetPlanByName(ctx, name)
	if err != nil && !errors.Is(err, cvgate.ErrPlanNotFound) {
		return nil, err
	}

	entry := &planEntry{err: err, expires: now.Add(s.conf.CatalogTTL)}
	if plan != nil {
		planCopy := *plan
		entry.plan = &planCopy
	}
	s.mu.Lock()
	s.plansByName[name] = entry
	s.mu.Unlock()

	return plan, err
}

// GetActiveSubscription implements cvgate.Store with read-through
// caching. The not-found answer is cached as well: unsubscribed users
// are the common case and resolve on every request.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*cvgate.Subscription, *cvgate.Plan, error) {
	now := s.conf.Clock()

	s.mu.RLock()
	cached := s.subscriptions[userID]
	s.mu.RUnlock()
	if cached != nil && now.Before(cached.expires) {
		if cached.err != nil {
			return nil, nil, cached.err
		}
		subCopy := *cached.sub
		planCopy := *cached.plan
		return &subCopy, &planCopy, nil
	}

	sub, plan, err := s.cold.GetActiveSubscription(ctx, userID)
	if err != nil && !errors.Is(err, cvgate.ErrSubscriptionNotFound) {
		// Conflicts and outages are not cached; the next call retries Cold
		return nil, nil, err
	}

	entry := &subscriptionEntry{err: err, expires: now.Add(s.conf.SubscriptionTTL)}
	if err == nil {
		subCopy := *sub
		planCopy := *plan
		entry.sub = &subCopy
		entry.plan = &planCopy
	}
	s.mu.Lock()
	s.subscriptions[userID] = entry
	s.mu.Unlock()

	return sub, plan, err
}

// GetUsage implements cvgate.Store. Cold-only: counters are never cached.
func (s *Store) GetUsage(ctx context.Context, userID string, day cvgate.Day) (*cvgate.UsageCounter, error) {
	return s.cold.GetUsage(ctx, userID, day)
}

// IncrementUsage implements cvgate.Store. Cold-only: the conditional
// increment is atomic only within a single backend.
func (s *Store) IncrementUsage(ctx context.Context, req *cvgate.IncrementRequest) (*cvgate.UsageCounter, error) {
	return s.cold.IncrementUsage(ctx, req)
}

// ListDocuments implements cvgate.Store with read-through caching
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]cvgate.DocumentRef, error) {
	now := s.conf.Clock()

	s.mu.RLock()
	cached := s.documents[userID]
	s.mu.RUnlock()
	if cached != nil && now.Before(cached.expires) {
		out := make([]cvgate.DocumentRef, len(cached.docs))
		copy(out, cached.docs)
		return out, nil
	}

	docs, err := s.cold.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}

	stored := make([]cvgate.DocumentRef, len(docs))
	copy(stored, docs)
	s.mu.Lock()
	s.documents[userID] = &documentsEntry{docs: stored, expires: now.Add(s.conf.DocumentTTL)}
	s.mu.Unlock()

	return docs, nil
}

// InvalidateUser drops the cached subscription and document list for a
// user. Call after a subscription change or document write so the next
// read sees Cold immediately instead of waiting out the TTL.
func (s *Store) InvalidateUser(userID string) {
	s.mu.Lock()
	delete(s.subscriptions, userID)
	delete(s.documents, userID)
	s.mu.Unlock()
}

// InvalidateCatalog drops all cached plans. Call after editing the plan
// catalog.
func (s *Store) InvalidateCatalog() {
	s.mu.Lock()
	s.plans = nil
	s.plansByName = make(map[string]*planEntry)
	s.mu.Unlock()
}
