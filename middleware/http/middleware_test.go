package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resumeforge/cvgate/pkg/cvgate"
	"github.com/resumeforge/cvgate/storage/memory"
)

// Test helper to create a gate over a seeded in-memory store
func setupTestGate(t *testing.T) (*cvgate.Gate, *memory.Store) {
	t.Helper()

	store := memory.New()
	plans := []cvgate.Plan{
		{ID: "plan-free", Name: "free", DisplayName: "Free", DailyCallQuota: 3, MaxEditableDocuments: 3, Active: true},
		{ID: "plan-pro", Name: "pro", DisplayName: "Pro", DailyCallQuota: 1000, MaxEditableDocuments: 50, TopTier: true, Active: true},
	}
	for _, plan := range plans {
		if err := store.SetPlan(plan); err != nil {
			t.Fatalf("SetPlan failed: %v", err)
		}
	}

	gate, err := cvgate.New(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	return gate, store
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_Success(t *testing.T) {
	gate, _ := setupTestGate(t)

	mw := Middleware(Config{
		Gate:        gate,
		GetUserID:   FromHeader("X-User-ID"),
		GetCategory: FixedCategory(cvgate.CategoryChat),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()

	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Quota-Limit"); got != "3" {
		t.Errorf("Expected X-Quota-Limit 3, got %q", got)
	}
	if got := rec.Header().Get("X-Quota-Remaining"); got != "2" {
		t.Errorf("Expected X-Quota-Remaining 2, got %q", got)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	gate, _ := setupTestGate(t)

	mw := Middleware(Config{
		Gate:      gate,
		GetUserID: FromHeader("X-User-ID"),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rec := httptest.NewRecorder()

	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_QuotaExceeded(t *testing.T) {
	gate, _ := setupTestGate(t)

	mw := Middleware(Config{
		Gate:      gate,
		GetUserID: FromHeader("X-User-ID"),
	})
	handler := mw(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-User-ID", "user1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Call %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}

	var body DeniedResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Error != "Daily API limit reached" {
		t.Errorf("Unexpected error message: %q", body.Error)
	}
	if body.Used != 3 || body.Limit != 3 {
		t.Errorf("Expected used=3 limit=3, got used=%d limit=%d", body.Used, body.Limit)
	}
	if !body.Upgradeable {
		t.Error("Free plan denial should be upgradeable")
	}
}

func TestMiddleware_CustomDeniedHandler(t *testing.T) {
	gate, store := setupTestGate(t)
	err := store.SetSubscription(cvgate.Subscription{
		ID: "sub1", UserID: "user1", PlanID: "plan-pro", Status: cvgate.StatusActive,
	})
	if err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}

	var captured *cvgate.CallDecision
	mw := Middleware(Config{
		Gate:      gate,
		GetUserID: FromHeader("X-User-ID"),
		OnDenied: func(w http.ResponseWriter, r *http.Request, decision *cvgate.CallDecision) {
			captured = decision
			w.WriteHeader(http.StatusPaymentRequired)
		},
	})
	handler := mw(okHandler())

	for i := 0; i < 1001; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-User-ID", "user1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if captured == nil {
		t.Fatal("Expected OnDenied to be called")
	}
	if captured.Upgradeable {
		t.Error("Top tier denial should not be upgradeable")
	}
	if captured.ResetInfo == "" {
		t.Error("Top tier denial should carry reset info")
	}
}

func TestMiddleware_CategoryFromHeader(t *testing.T) {
	gate, _ := setupTestGate(t)

	mw := Middleware(Config{
		Gate:        gate,
		GetUserID:   FromHeader("X-User-ID"),
		GetCategory: FromCategoryHeader("X-Call-Category"),
	})

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-Call-Category", "ats_analysis")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	counter, err := gate.Counter().Get(context.Background(), "user1", cvgate.DayOf(time.Now()))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if counter.Get(cvgate.CategoryATSAnalysis) != 1 {
		t.Errorf("Expected ats_analysis count 1, got %+v", counter.ByCategory)
	}
}

func TestFromContext(t *testing.T) {
	extractor := FromContext(UserIDKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extractor(req); got != "" {
		t.Errorf("Expected empty user ID, got %q", got)
	}

	req = req.WithContext(WithUserID(req.Context(), "user42"))
	if got := extractor(req); got != "user42" {
		t.Errorf("Expected user42, got %q", got)
	}
}
