package cvgate

import (
	"context"
	"errors"
	"fmt"
)

// Gate composes the resolver, counter, and ranker into admission
// decisions for metered calls and document access. Every check path
// fails closed: a storage failure denies the action rather than
// bypassing quota.
type Gate struct {
	resolver *Resolver
	counter  *Counter
	ranker   *Ranker
	config   Config
}

// NewGate creates a gate from explicitly constructed components.
func NewGate(resolver *Resolver, counter *Counter, ranker *Ranker, config *Config) (*Gate, error) {
	if resolver == nil || counter == nil || ranker == nil {
		return nil, errors.New("cvgate: resolver, counter, and ranker are required")
	}
	return &Gate{
		resolver: resolver,
		counter:  counter,
		ranker:   ranker,
		config:   config.withDefaults(),
	}, nil
}

// New wires a complete gate over a single store. It verifies the free
// plan invariant up front and returns ErrFreePlanMissing when the
// catalog is misconfigured; treat that as fatal.
func New(ctx context.Context, store Store, config *Config) (*Gate, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	cfg := config.withDefaults()

	catalog, err := NewCatalog(ctx, store)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(store, catalog, WithResolverLogger(cfg.Logger))
	counter := NewCounter(store)
	ranker := NewRanker(store, resolver)

	return NewGate(resolver, counter, ranker, &cfg)
}

// CheckAndConsume decides whether the user may make one metered call of
// the given category and, when allowed, records it. The check and the
// increment are one atomic conditional step in storage, so concurrent
// requests from the same user cannot over-admit.
//
// A denied call is an ordinary decision, not an error: the error return
// is reserved for storage failures, which deny by failing closed.
func (g *Gate) CheckAndConsume(ctx context.Context, userID string, category Category) (*CallDecision, error) {
	start := g.config.Clock()
	defer func() {
		g.config.Metrics.RecordAdmissionDuration(category, g.config.Clock().Sub(start))
	}()

	if category == "" {
		category = CategoryGeneral
	}

	plan, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	quota := plan.Plan.DailyCallQuota
	day := DayOf(g.config.Clock())

	if quota <= 0 {
		counter, err := g.counter.Get(ctx, userID, day)
		if err != nil {
			return nil, err
		}
		decision := g.denyCall(plan, category, counter.TotalCalls)
		g.config.Metrics.RecordAdmission(category, plan.Plan.Name, false)
		return decision, nil
	}

	counter, err := g.counter.ConsumeIfBelow(ctx, userID, day, category, quota)
	if errors.Is(err, ErrQuotaExceeded) {
		used := quota
		if counter != nil {
			used = counter.TotalCalls
		}
		decision := g.denyCall(plan, category, used)
		g.config.Metrics.RecordAdmission(category, plan.Plan.Name, false)
		g.config.Logger.Debug("call denied",
			Field{Key: "user_id", Value: userID},
			Field{Key: "category", Value: string(category)},
			Field{Key: "plan", Value: plan.Plan.Name},
			Field{Key: "used", Value: used},
		)
		return decision, nil
	}
	if err != nil {
		g.config.Logger.Error("usage increment failed",
			Field{Key: "user_id", Value: userID},
			Field{Key: "category", Value: string(category)},
			Field{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("consume call quota: %w", err)
	}

	g.config.Metrics.RecordAdmission(category, plan.Plan.Name, true)
	return &CallDecision{
		Allowed:   true,
		Category:  category,
		Used:      counter.TotalCalls,
		Limit:     quota,
		Remaining: remaining(quota, counter.TotalCalls),
		PlanName:  plan.Plan.DisplayName,
	}, nil
}

// CheckDocumentEditPermission decides whether the user may edit the
// given document under their current plan. Documents beyond the plan's
// editable window are read-only, never deleted; the denial explains the
// document's position and how to regain access.
func (g *Gate) CheckDocumentEditPermission(ctx context.Context, userID, documentID string) (*EditDecision, error) {
	plan, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := plan.Plan.MaxEditableDocuments

	ranked, err := g.ranker.rankFor(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	var rank *RankedDocument
	for i := range ranked {
		if ranked[i].ID == documentID {
			rank = &ranked[i]
			break
		}
	}
	if rank == nil {
		return nil, ErrDocumentNotFound
	}

	if !rank.Editable {
		g.config.Metrics.RecordEditCheck(plan.Plan.Name, false)
		return &EditDecision{
			Allowed:     false,
			DocumentID:  documentID,
			Position:    rank.Position,
			Limit:       limit,
			PlanName:    plan.Plan.DisplayName,
			Upgradeable: !plan.Plan.TopTier,
			Message: fmt.Sprintf(
				"Your %s plan allows editing your %d newest documents. This document is #%d (older) and is read-only. Upgrade to edit more documents or delete some newer documents to make this one editable.",
				plan.Plan.DisplayName, limit, rank.Position,
			),
		}, nil
	}

	g.config.Metrics.RecordEditCheck(plan.Plan.Name, true)
	return &EditDecision{
		Allowed:    true,
		DocumentID: documentID,
		Position:   rank.Position,
		Limit:      limit,
		PlanName:   plan.Plan.DisplayName,
	}, nil
}

// CheckDocumentCreation decides whether the user may create another
// document under their current plan's document limit.
func (g *Gate) CheckDocumentCreation(ctx context.Context, userID string) (*CreateDecision, error) {
	plan, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := plan.Plan.MaxEditableDocuments

	ranked, err := g.ranker.rankFor(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	used := len(ranked)

	decision := &CreateDecision{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining(limit, used),
		PlanName:  plan.Plan.DisplayName,
	}
	if !decision.Allowed {
		decision.Message = "Document creation limit reached"
		decision.Upgradeable = !plan.Plan.TopTier
		if decision.Upgradeable {
			decision.UpgradeMessage = "Upgrade to create more documents"
		}
	}
	return decision, nil
}

// CurrentUsage reports the user's call and document usage against the
// effective plan's limits for the current day.
func (g *Gate) CurrentUsage(ctx context.Context, userID string) (*UsageReport, error) {
	plan, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	day := DayOf(g.config.Clock())

	counter, err := g.counter.Get(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	ranked, err := g.ranker.rankFor(ctx, userID, plan.Plan.MaxEditableDocuments)
	if err != nil {
		return nil, err
	}

	return &UsageReport{
		Day:                day,
		CallsUsed:          counter.TotalCalls,
		CallsLimit:         plan.Plan.DailyCallQuota,
		CallsRemaining:     remaining(plan.Plan.DailyCallQuota, counter.TotalCalls),
		DocumentsUsed:      len(ranked),
		DocumentsLimit:     plan.Plan.MaxEditableDocuments,
		DocumentsRemaining: remaining(plan.Plan.MaxEditableDocuments, len(ranked)),
	}, nil
}

// DocumentAccessSummary reports the user's document-access state.
func (g *Gate) DocumentAccessSummary(ctx context.Context, userID string) (*AccessSummary, error) {
	return g.ranker.Summary(ctx, userID)
}

// Resolver returns the gate's subscription resolver.
func (g *Gate) Resolver() *Resolver {
	return g.resolver
}

// Counter returns the gate's usage counter.
func (g *Gate) Counter() *Counter {
	return g.counter
}

// Ranker returns the gate's document ranker.
func (g *Gate) Ranker() *Ranker {
	return g.ranker
}

func (g *Gate) denyCall(plan *EffectivePlan, category Category, used int) *CallDecision {
	decision := &CallDecision{
		Allowed:   false,
		Category:  category,
		Used:      used,
		Limit:     plan.Plan.DailyCallQuota,
		Remaining: remaining(plan.Plan.DailyCallQuota, used),
		PlanName:  plan.Plan.DisplayName,
		Message:   "Daily API limit reached",
	}
	if plan.Plan.TopTier {
		decision.ResetInfo = "Your API calls will reset at midnight UTC"
	} else {
		decision.Upgradeable = true
		decision.UpgradeMessage = "Upgrade to get more API calls per day"
	}
	return decision
}

func remaining(limit, used int) int {
	r := limit - used
	if r < 0 {
		return 0
	}
	return r
}
