package fiber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/resumeforge/cvgate/pkg/cvgate"
	"github.com/resumeforge/cvgate/storage/memory"
)

func setupTestGate(t *testing.T) *cvgate.Gate {
	t.Helper()

	store := memory.New()
	if err := store.SetPlan(cvgate.Plan{
		ID: "plan-free", Name: "free", DisplayName: "Free",
		DailyCallQuota: 2, MaxEditableDocuments: 3, Active: true,
	}); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}

	gate, err := cvgate.New(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	return gate
}

func newFiberApp(gate *cvgate.Gate, cfg Config) *fiber.App {
	app := fiber.New()
	cfg.Gate = gate
	app.Use(Middleware(cfg))
	app.Post("/chat", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, userID string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func TestMiddleware_Success(t *testing.T) {
	gate := setupTestGate(t)
	app := newFiberApp(gate, Config{
		GetUserID:   FromHeader("X-User-ID"),
		GetCategory: FixedCategory(cvgate.CategoryChat),
	})

	resp := doRequest(t, app, "user1")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Quota-Remaining"); got != "1" {
		t.Errorf("Expected X-Quota-Remaining 1, got %q", got)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	gate := setupTestGate(t)
	app := newFiberApp(gate, Config{GetUserID: FromHeader("X-User-ID")})

	resp := doRequest(t, app, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestMiddleware_QuotaExceeded(t *testing.T) {
	gate := setupTestGate(t)
	app := newFiberApp(gate, Config{GetUserID: FromHeader("X-User-ID")})

	for i := 0; i < 2; i++ {
		resp := doRequest(t, app, "user1")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Call %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp := doRequest(t, app, "user1")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["error"] != "Daily API limit reached" {
		t.Errorf("Unexpected error message: %v", body["error"])
	}
	if body["upgradeable"] != true {
		t.Error("Free plan denial should be upgradeable")
	}
}

func TestFromLocals(t *testing.T) {
	gate := setupTestGate(t)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "user9")
		return c.Next()
	})
	app.Use(Middleware(Config{
		Gate:      gate,
		GetUserID: FromLocals("user_id"),
	}))
	app.Post("/chat", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}
