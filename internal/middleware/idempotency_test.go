package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/usage_billing/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	calls := &atomic.Int32{}
	app.Use(Idempotency(cache, time.Minute, logger))
	app.Post("/billing/usage", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": n})
	})
	app.Post("/billing/fail", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusNotFound, "Customer not found")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, body, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload), resp.Header.Get(idempotentReplayHeader)
}

func TestIdempotencyKeyIsOptional(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		status, _, _ := post(t, app, "/billing/usage", "{}", "")
		if status != fiber.StatusCreated {
			t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("requests without a key must reach the handler, got %d calls", calls.Load())
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	body := `{"customerId":"c1","units":1}`
	status, first, _ := post(t, app, "/billing/usage", body, "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, second, replayed := post(t, app, "/billing/usage", body, "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if second != first {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if replayed != "true" {
		t.Fatalf("expected replay header")
	}
	if calls.Load() != 1 {
		t.Fatalf("handler should run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _, _ := post(t, app, "/billing/usage", `{"units":1}`, "k"); status != fiber.StatusCreated {
		t.Fatalf("first request failed with %d", status)
	}
	status, _, _ := post(t, app, "/billing/usage", `{"units":2}`, "k")
	if status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	if calls.Load() != 1 {
		t.Fatalf("conflicting request must not reach the handler")
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		status, _, _ := post(t, app, "/billing/fail", "{}", "retry-me")
		if status != fiber.StatusNotFound {
			t.Fatalf("expected %d got %d", fiber.StatusNotFound, status)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("failed requests should be retried, got %d calls", calls.Load())
	}
}
