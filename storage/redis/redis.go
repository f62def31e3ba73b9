// Package redis provides a Redis implementation of the cvgate.Store interface.
// Counter updates use a Lua script so the quota check and the increment happen
// as a single atomic operation.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

const categoryField = "cat:"

// Store implements cvgate.Store using Redis
type Store struct {
	client  redis.UniversalClient
	config  Config
	consume *redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "cvgate:")
	KeyPrefix string

	// UsageTTL is the TTL for daily usage keys (default: 48h).
	// Counters are keyed by calendar day, so they only need to outlive
	// the day they describe.
	UsageTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "cvgate:",
		UsageTTL:  48 * time.Hour,
	}
}

// New creates a new Redis store adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "cvgate:"
	}

	s := &Store{
		client: client,
		config: config,
	}

	// Check the current total, reject if the daily limit is already met,
	// otherwise bump the total and the per-category counter in one step.
	s.consume = redis.NewScript(`
		local key = KEYS[1]
		local category = ARGV[1]
		local limit = tonumber(ARGV[2])
		local updated = ARGV[3]
		local ttl = tonumber(ARGV[4])

		local total = tonumber(redis.call('HGET', key, 'total') or '0')
		if limit > 0 and total >= limit then
			return {total, 'quota_exceeded'}
		end

		total = redis.call('HINCRBY', key, 'total', 1)
		redis.call('HINCRBY', key, 'cat:' .. category, 1)
		redis.call('HSET', key, 'updated', updated)
		if ttl > 0 then
			redis.call('EXPIRE', key, ttl)
		end

		return {total, 'ok'}
	`)

	return s, nil
}

// ListActivePlans implements cvgate.Store. Plans are returned cheapest
// first so callers can render an upgrade ladder directly.
func (s *Store) ListActivePlans(ctx context.Context) ([]cvgate.Plan, error) {
	names, err := s.client.SMembers(ctx, s.planIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	plans := make([]cvgate.Plan, 0, len(names))
	for _, name := range names {
		plan, err := s.GetPlanByName(ctx, name)
		if err == cvgate.ErrPlanNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !plan.Active {
			continue
		}
		plans = append(plans, *plan)
	}

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
	data, err := s.client.Get(ctx, s.planKey(name)).Bytes()
	if err == redis.Nil {
		return nil, cvgate.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	var plan cvgate.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	return &plan, nil
}

// SetPlan stores a plan definition. Plans are indexed by name, with an ID
// alias so subscriptions can be joined back to their plan.
func (s *Store) SetPlan(ctx context.Context, plan *cvgate.Plan) error {
	if plan == nil || plan.Name == "" {
		return fmt.Errorf("invalid plan")
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.planKey(plan.Name), data, 0)
	if plan.ID != "" {
		pipe.Set(ctx, s.planIDKey(plan.ID), plan.Name, 0)
	}
	pipe.SAdd(ctx, s.planIndexKey(), plan.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}

	return nil
}

// GetActiveSubscription implements cvgate.Store. Redis holds at most one
// active subscription per user key, so the ambiguous multi-row case other
// adapters report cannot occur here.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*cvgate.Subscription, *cvgate.Plan, error) {
	data, err := s.client.Get(ctx, s.subscriptionKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil, cvgate.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var sub cvgate.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	if sub.Status != cvgate.StatusActive {
		return nil, nil, cvgate.ErrSubscriptionNotFound
	}

	planName, err := s.client.Get(ctx, s.planIDKey(sub.PlanID)).Result()
	if err == redis.Nil {
		return nil, nil, cvgate.ErrPlanNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve plan id: %w", err)
	}

	plan, err := s.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, nil, err
	}

	return &sub, plan, nil
}

// SetSubscription stores the subscription record for a user, replacing any
// existing one
func (s *Store) SetSubscription(ctx context.Context, sub *cvgate.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return fmt.Errorf("invalid subscription")
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := s.client.Set(ctx, s.subscriptionKey(sub.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}

	return nil
}

// GetUsage implements cvgate.Store
func (s *Store) GetUsage(ctx context.Context, userID string, day cvgate.Day) (*cvgate.UsageCounter, error) {
	fields, err := s.client.HGetAll(ctx, s.usageKey(userID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	if len(fields) == 0 {
		return nil, nil // No usage yet
	}

	return buildCounter(userID, day, fields)
}

// IncrementUsage implements cvgate.Store
func (s *Store) IncrementUsage(ctx context.Context, req *cvgate.IncrementRequest) (*cvgate.UsageCounter, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("invalid increment request")
	}

	category := req.Category
	if category == "" {
		category = cvgate.CategoryGeneral
	}

	key := s.usageKey(req.UserID, req.Day)
	result, err := s.consume.Run(ctx, s.client,
		[]string{key},
		string(category),
		req.Limit,
		time.Now().UTC().Format(time.RFC3339Nano),
		int(s.config.UsageTTL.Seconds()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected script result: %v", result)
	}

	status, _ := values[1].(string)
	if status == "quota_exceeded" {
		counter, gerr := s.GetUsage(ctx, req.UserID, req.Day)
		if gerr != nil {
			return nil, gerr
		}
		if counter == nil {
			counter = &cvgate.UsageCounter{
				UserID:     req.UserID,
				Day:        req.Day,
				ByCategory: map[cvgate.Category]int{},
			}
		}
		return counter, cvgate.ErrQuotaExceeded
	}

	return s.GetUsage(ctx, req.UserID, req.Day)
}

// ListDocuments implements cvgate.Store. Documents live in a sorted set
// scored by creation time, so reads come back oldest first.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]cvgate.DocumentRef, error) {
	members, err := s.client.ZRangeWithScores(ctx, s.documentsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]cvgate.DocumentRef, 0, len(members))
	for _, member := range members {
		id, ok := member.Member.(string)
		if !ok {
			return nil, fmt.Errorf("invalid document member: %v", member.Member)
		}
		docs = append(docs, cvgate.DocumentRef{
			ID:        id,
			OwnerID:   userID,
			CreatedAt: time.UnixMicro(int64(member.Score)).UTC(),
		})
	}

	return docs, nil
}

// AddDocument records a document owned by a user
func (s *Store) AddDocument(ctx context.Context, doc *cvgate.DocumentRef) error {
	if doc == nil || doc.ID == "" || doc.OwnerID == "" {
		return fmt.Errorf("invalid document")
	}

	err := s.client.ZAdd(ctx, s.documentsKey(doc.OwnerID), redis.Z{
		Score:  float64(doc.CreatedAt.UnixMicro()),
		Member: doc.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	return nil
}

// RemoveDocument deletes a document reference
func (s *Store) RemoveDocument(ctx context.Context, userID, documentID string) error {
	if err := s.client.ZRem(ctx, s.documentsKey(userID), documentID).Err(); err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity to Redis
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func buildCounter(userID string, day cvgate.Day, fields map[string]string) (*cvgate.UsageCounter, error) {
	counter := &cvgate.UsageCounter{
		UserID:     userID,
		Day:        day,
		ByCategory: make(map[cvgate.Category]int),
	}

	for field, value := range fields {
		switch {
		case field == "total":
			total, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse usage total: %w", err)
			}
			counter.TotalCalls = total
		case field == "updated":
			updated, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse usage timestamp: %w", err)
			}
			counter.UpdatedAt = updated
		case strings.HasPrefix(field, categoryField):
			count, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse category count: %w", err)
			}
			counter.ByCategory[cvgate.Category(strings.TrimPrefix(field, categoryField))] = count
		}
	}

	return counter, nil
}

func (s *Store) planKey(name string) string {
	return s.config.KeyPrefix + "plan:" + name
}

func (s *Store) planIDKey(id string) string {
	return s.config.KeyPrefix + "planid:" + id
}

func (s *Store) planIndexKey() string {
	return s.config.KeyPrefix + "plans"
}

func (s *Store) subscriptionKey(userID string) string {
	return s.config.KeyPrefix + "sub:" + userID
}

func (s *Store) usageKey(userID string, day cvgate.Day) string {
	return s.config.KeyPrefix + "usage:" + userID + ":" + day.Key()
}

func (s *Store) documentsKey(userID string) string {
	return s.config.KeyPrefix + "docs:" + userID
}
