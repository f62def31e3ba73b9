// Package memory provides an in-memory implementation of the cvgate.Store
// interface. This implementation is primarily intended for testing and
// development; its seed helpers stand in for the external collaborators
// that administer plans, subscriptions, and documents in production.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// Store implements cvgate.Store using in-memory maps
type Store struct {
	mu            sync.RWMutex
	plans         map[string]*cvgate.Plan           // keyed by plan name
	subscriptions map[string][]*cvgate.Subscription // keyed by user ID, history retained
	usage         map[string]*cvgate.UsageCounter   // keyed by user ID + day
	documents     map[string][]cvgate.DocumentRef   // keyed by owner ID
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		plans:         make(map[string]*cvgate.Plan),
		subscriptions: make(map[string][]*cvgate.Subscription),
		usage:         make(map[string]*cvgate.UsageCounter),
		documents:     make(map[string][]cvgate.DocumentRef),
	}
}

// SetPlan stores or replaces a plan in the catalog.
func (s *Store) SetPlan(plan cvgate.Plan) error {
	if plan.Name == "" {
		return fmt.Errorf("invalid plan: name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	planCopy := plan
	s.plans[plan.Name] = &planCopy
	return nil
}

// SetSubscription stores or replaces a subscription row by ID. Rows are
// never removed; superseded rows stay for history, matching the
// production schema.
func (s *Store) SetSubscription(sub cvgate.Subscription) error {
	if sub.ID == "" || sub.UserID == "" {
		return fmt.Errorf("invalid subscription: id and user id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subCopy := sub
	rows := s.subscriptions[sub.UserID]
	for i, existing := range rows {
		if existing.ID == sub.ID {
			rows[i] = &subCopy
			return nil
		}
	}
	s.subscriptions[sub.UserID] = append(rows, &subCopy)
	return nil
}

// AddDocument registers a document reference for ranking.
func (s *Store) AddDocument(doc cvgate.DocumentRef) error {
	if doc.ID == "" || doc.OwnerID == "" {
		return fmt.Errorf("invalid document: id and owner id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.documents[doc.OwnerID] {
		if existing.ID == doc.ID {
			return fmt.Errorf("document %s already exists", doc.ID)
		}
	}
	s.documents[doc.OwnerID] = append(s.documents[doc.OwnerID], doc)
	return nil
}

// RemoveDocument drops a document reference.
func (s *Store) RemoveDocument(ownerID, documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.documents[ownerID]
	for i, doc := range docs {
		if doc.ID == documentID {
			s.documents[ownerID] = append(docs[:i], docs[i+1:]...)
			return
		}
	}
}

// ListActivePlans implements cvgate.Store
func (s *Store) ListActivePlans(ctx context.Context) ([]cvgate.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plans []cvgate.Plan
	for _, plan := range s.plans {
		if plan.Active {
			plans = append(plans, *plan)
		}
	}

	// Cheapest first, names as tiebreak, matching the catalog contract.
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].MonthlyPricePennies != plans[j].MonthlyPricePennies {
			return plans[i].MonthlyPricePennies < plans[j].MonthlyPricePennies
		}
		return plans[i].Name < plans[j].Name
	})
	return plans, nil
}

// GetPlanByName implements cvgate.Store
func (s *Store) GetPlanByName(ctx context.Context, name string) (*cvgate.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[name]
	if !ok {
		return nil, cvgate.ErrPlanNotFound
	}

	planCopy := *plan
	return &planCopy, nil
}

// GetActiveSubscription implements cvgate.Store
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*cvgate.Subscription, *cvgate.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*cvgate.Subscription
	for _, sub := range s.subscriptions[userID] {
		if sub.Status == cvgate.StatusActive {
			active = append(active, sub)
		}
	}

	switch len(active) {
	case 0:
		return nil, nil, cvgate.ErrSubscriptionNotFound
	case 1:
	default:
		return nil, nil, cvgate.ErrSubscriptionConflict
	}

	sub := *active[0]
	for _, plan := range s.plans {
		if plan.ID == sub.PlanID {
			planCopy := *plan
			return &sub, &planCopy, nil
		}
	}
	return nil, nil, fmt.Errorf("subscription %s references unknown plan %s", sub.ID, sub.PlanID)
}

// GetUsage implements cvgate.Store
func (s *Store) GetUsage(ctx context.Context, userID string, day cvgate.Day) (*cvgate.UsageCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counter, ok := s.usage[usageKey(userID, day)]
	if !ok {
		return nil, nil // No usage yet is not an error
	}
	return copyCounter(counter), nil
}

// IncrementUsage implements cvgate.Store. The whole create-or-increment
// runs under one lock, so concurrent callers cannot lose an increment
// or create two counters for the same day.
func (s *Store) IncrementUsage(ctx context.Context, req *cvgate.IncrementRequest) (*cvgate.UsageCounter, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("invalid increment request")
	}
	category := req.Category
	if category == "" {
		category = cvgate.CategoryGeneral
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(req.UserID, req.Day)
	counter, ok := s.usage[key]
	if !ok {
		counter = &cvgate.UsageCounter{
			UserID:     req.UserID,
			Day:        req.Day,
			ByCategory: make(map[cvgate.Category]int),
		}
	}

	if req.Limit > 0 && counter.TotalCalls >= req.Limit {
		return copyCounter(counter), cvgate.ErrQuotaExceeded
	}

	counter.TotalCalls++
	counter.ByCategory[category]++
	counter.UpdatedAt = time.Now().UTC()
	s.usage[key] = counter

	return copyCounter(counter), nil
}

// ListDocuments implements cvgate.Store
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]cvgate.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.documents[userID]
	out := make([]cvgate.DocumentRef, len(docs))
	copy(out, docs)
	return out, nil
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans = make(map[string]*cvgate.Plan)
	s.subscriptions = make(map[string][]*cvgate.Subscription)
	s.usage = make(map[string]*cvgate.UsageCounter)
	s.documents = make(map[string][]cvgate.DocumentRef)
}

func usageKey(userID string, day cvgate.Day) string {
	return fmt.Sprintf("%s:%s", userID, day.Key())
}

func copyCounter(counter *cvgate.UsageCounter) *cvgate.UsageCounter {
	out := *counter
	out.ByCategory = make(map[cvgate.Category]int, len(counter.ByCategory))
	for k, v := range counter.ByCategory {
		out.ByCategory[k] = v
	}
	return &out
}
