package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/resumeforge/cvgate/pkg/cvgate"
	"github.com/resumeforge/cvgate/storage/memory"
)

func setupTestGate(t *testing.T) *cvgate.Gate {
	t.Helper()

	store := memory.New()
	plans := []cvgate.Plan{
		{ID: "plan-free", Name: "free", DisplayName: "Free", DailyCallQuota: 2, MaxEditableDocuments: 3, Active: true},
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
	return gate
}

func newEchoApp(gate *cvgate.Gate, cfg Config) *echo.Echo {
	e := echo.New()
	cfg.Gate = gate
	e.Use(Middleware(cfg))
	e.POST("/chat", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestMiddleware_Success(t *testing.T) {
	gate := setupTestGate(t)
	e := newEchoApp(gate, Config{
		GetUserID:   FromHeader("X-User-ID"),
		GetCategory: FixedCategory(cvgate.CategoryChat),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Quota-Remaining"); got != "1" {
		t.Errorf("Expected X-Quota-Remaining 1, got %q", got)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	gate := setupTestGate(t)
	e := newEchoApp(gate, Config{GetUserID: FromHeader("X-User-ID")})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_QuotaExceeded(t *testing.T) {
	gate := setupTestGate(t)
	e := newEchoApp(gate, Config{GetUserID: FromHeader("X-User-ID")})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-User-ID", "user1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Call %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["error"] != "Daily API limit reached" {
		t.Errorf("Unexpected error message: %v", body["error"])
	}
	if body["upgradeable"] != true {
		t.Error("Free plan denial should be upgradeable")
	}
}

func TestMiddleware_CustomDeniedStatusCode(t *testing.T) {
	gate := setupTestGate(t)
	e := newEchoApp(gate, Config{
		GetUserID:        FromHeader("X-User-ID"),
		DeniedStatusCode: http.StatusPaymentRequired,
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-User-ID", "user1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if i == 2 && rec.Code != http.StatusPaymentRequired {
			t.Errorf("Expected 402, got %d", rec.Code)
		}
	}
}

func TestFromEchoContext(t *testing.T) {
	gate := setupTestGate(t)
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "user7")
			return next(c)
		}
	})
	e.Use(Middleware(Config{
		Gate:      gate,
		GetUserID: FromEchoContext("user_id"),
	}))
	e.POST("/chat", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
