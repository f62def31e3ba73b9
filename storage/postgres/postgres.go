// Package postgres provides a PostgreSQL implementation of the cvgate.Store
// interface. The usage increment is a single upsert statement whose update
// arm is guarded by the quota limit, so check-then-act collapses into one
// atomic conditional increment at the database.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

// Store implements cvgate.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates the tables the store reads and writes. The
// documents table is owned by the document service in production;
// creating it here keeps development and test databases self-contained.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS subscription_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		daily_call_quota INTEGER NOT NULL DEFAULT 0,
		max_editable_documents INTEGER NOT NULL DEFAULT 0,
		top_tier BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		monthly_price_pennies INTEGER NOT NULL DEFAULT 0,
		yearly_price_pennies INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL REFERENCES subscription_plans(id),
		status TEXT NOT NULL DEFAULT 'active',
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		current_period_start TIMESTAMPTZ,
		current_period_end TIMESTAMPTZ,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
		cancelled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// History is retained, so uniqueness is scoped to the active state
	// rather than blanket-unique on user_id.
	`CREATE UNIQUE INDEX IF NOT EXISTS user_subscriptions_one_active
		ON user_subscriptions (user_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS api_usage (
		user_id TEXT NOT NULL,
		usage_date DATE NOT NULL,
		total_calls INTEGER NOT NULL DEFAULT 0,
		calls_by_category JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, usage_date)
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS documents_user_created
		ON documents (user_id, created_at DESC)`,
}

// ListActivePlans implements cvgate.Store
func (s *Store) ListActivePlans(ctx context.Context) ([]cvgate.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, display_name, daily_call_quota, max_editable_documents,
				top_tier, is_active, monthly_price_pennies, yearly_price_pennies,
				created_at, updated_at
			FROM subscription_plans
			WHERE is_active
			ORDER BY monthly_price_pennies, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []cvgate.Plan
	for rows.Next() {
		var plan cvgate.Plan
		if err := rows.Scan(
			&plan.ID, &plan.Name, &plan.DisplayName,
			&plan.DailyCallQuota, &plan.MaxEditableDocuments,
			&plan.TopTier, &plan.Active,
			&plan.MonthlyPricePennies, &plan.YearlyPricePennies,
			&plan.CreatedAt, &plan.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// GetPlanByName implements cvgate.Store
func (s *Store) GetPlanByName(ctx context.Context, name string) (*cvgate.Plan, error) {
	var plan cvgate.Plan
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, display_name, daily_call_quota, max_editable_documents,
				top_tier, is_active, monthly_price_pennies, yearly_price_pennies,
				created_at, updated_at
			FROM subscription_plans WHERE name = $1`,
		name).Scan(
		&plan.ID, &plan.Name, &plan.DisplayName,
		&plan.DailyCallQuota, &plan.MaxEditableDocuments,
		&plan.TopTier, &plan.Active,
		&plan.MonthlyPricePennies, &plan.YearlyPricePennies,
		&plan.CreatedAt, &plan.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, cvgate.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// UpsertPlan inserts or updates a plan definition. Intended for catalog
// seeding and admin tooling.
func (s *Store) UpsertPlan(ctx context.Context, plan *cvgate.Plan) error {
	if plan == nil || plan.ID == "" || plan.Name == "" {
		return fmt.Errorf("invalid plan")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscription_plans
			(id, name, display_name, daily_call_quota, max_editable_documents,
			 top_tier, is_active, monthly_price_pennies, yearly_price_pennies)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				display_name = EXCLUDED.display_name,
				daily_call_quota = EXCLUDED.daily_call_quota,
				max_editable_documents = EXCLUDED.max_editable_documents,
				top_tier = EXCLUDED.top_tier,
				is_active = EXCLUDED.is_active,
				monthly_price_pennies = EXCLUDED.monthly_price_pennies,
				yearly_price_pennies = EXCLUDED.yearly_price_pennies,
				updated_at = NOW()`,
		plan.ID, plan.Name, plan.DisplayName,
		plan.DailyCallQuota, plan.MaxEditableDocuments,
		plan.TopTier, plan.Active,
		plan.MonthlyPricePennies, plan.YearlyPricePennies)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}
	return nil
}

// GetActiveSubscription implements cvgate.Store. The partial unique
// index makes a second active row unreachable in practice; the LIMIT 2
// probe still detects one and surfaces the conflict instead of picking
// a row.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*cvgate.Subscription, *cvgate.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.user_id, s.plan_id, s.status, s.billing_cycle,
				s.current_period_start, s.current_period_end,
				s.cancel_at_period_end, s.cancelled_at, s.created_at, s.updated_at,
				p.id, p.name, p.display_name, p.daily_call_quota, p.max_editable_documents,
				p.top_tier, p.is_active, p.monthly_price_pennies, p.yearly_price_pennies,
				p.created_at, p.updated_at
			FROM user_subscriptions s
			JOIN subscription_plans p ON p.id = s.plan_id
			WHERE s.user_id = $1 AND s.status = 'active'
			LIMIT 2`,
		userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	defer rows.Close()

	var found int
	var sub cvgate.Subscription
	var plan cvgate.Plan
	for rows.Next() {
		found++
		if found > 1 {
			return nil, nil, cvgate.ErrSubscriptionConflict
		}
		var status, cycle string
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.PlanID, &status, &cycle,
			&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
			&sub.CancelAtPeriodEnd, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt,
			&plan.ID, &plan.Name, &plan.DisplayName,
			&plan.DailyCallQuota, &plan.MaxEditableDocuments,
			&plan.TopTier, &plan.Active,
			&plan.MonthlyPricePennies, &plan.YearlyPricePennies,
			&plan.CreatedAt, &plan.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		sub.Status = cvgate.SubscriptionStatus(status)
		sub.BillingCycle = cvgate.BillingCycle(cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if found == 0 {
		return nil, nil, cvgate.ErrSubscriptionNotFound
	}
	return &sub, &plan, nil
}

// GetUsage implements cvgate.Store
func (s *Store) GetUsage(ctx context.Context, userID string, day cvgate.Day) (*cvgate.UsageCounter, error) {
	var total int
	var byCategory []byte
	var updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT total_calls, calls_by_category, updated_at
			FROM api_usage
			WHERE user_id = $1 AND usage_date = $2`,
		userID, day.Time()).Scan(&total, &byCategory, &updatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil // No usage yet is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	return buildCounter(userID, day, total, byCategory, updatedAt)
}

// IncrementUsage implements cvgate.Store. The upsert's update arm is
// guarded by the limit, so a rejected consume changes nothing and the
// statement as a whole is the atomic conditional increment.
func (s *Store) IncrementUsage(ctx context.Context, req *cvgate.IncrementRequest) (*cvgate.UsageCounter, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("invalid increment request")
	}
	category := string(req.Category)
	if category == "" {
		category = string(cvgate.CategoryGeneral)
	}

	var total int
	var byCategory []byte
	var updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_usage (user_id, usage_date, total_calls, calls_by_category, updated_at)
			VALUES ($1, $2, 1, jsonb_build_object($3::text, 1), NOW())
			ON CONFLICT (user_id, usage_date) DO UPDATE SET
				total_calls = api_usage.total_calls + 1,
				calls_by_category = jsonb_set(
					api_usage.calls_by_category,
					ARRAY[$3::text],
					(COALESCE((api_usage.calls_by_category->>$3)::int, 0) + 1)::text::jsonb),
				updated_at = NOW()
			WHERE $4::int <= 0 OR api_usage.total_calls < $4::int
			RETURNING total_calls, calls_by_category, updated_at`,
		req.UserID, req.Day.Time(), category, req.Limit,
	).Scan(&total, &byCategory, &updatedAt)

	if err == pgx.ErrNoRows {
		// Limit guard rejected the update; report the surviving row.
		counter, getErr := s.GetUsage(ctx, req.UserID, req.Day)
		if getErr != nil {
			return nil, getErr
		}
		return counter, cvgate.ErrQuotaExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	counter, err := buildCounter(req.UserID, req.Day, total, byCategory, updatedAt)
	if err != nil {
		return nil, err
	}
	return counter, nil
}

// ListDocuments implements cvgate.Store
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]cvgate.DocumentRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, created_at FROM documents WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []cvgate.DocumentRef
	for rows.Next() {
		var doc cvgate.DocumentRef
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func buildCounter(userID string, day cvgate.Day, total int, byCategory []byte, updatedAt time.Time) (*cvgate.UsageCounter, error) {
	counter := &cvgate.UsageCounter{
		UserID:     userID,
		Day:        day,
		TotalCalls: total,
		ByCategory: make(map[cvgate.Category]int),
		UpdatedAt:  updatedAt,
	}
	if len(byCategory) > 0 {
		if err := json.Unmarshal(byCategory, &counter.ByCategory); err != nil {
			return nil, fmt.Errorf("failed to decode category counts: %w", err)
		}
	}
	return counter, nil
}
