package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

func adminApp(t *testing.T, hash string) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/admin/billing/run", AdminAuth(hash), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func callAdmin(t *testing.T, app *fiber.App, authz string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/admin/billing/run", nil)
	if authz != "" {
		req.Header.Set(fiber.HeaderAuthorization, authz)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	app := adminApp(t, string(hash))

	if status := callAdmin(t, app, ""); status != fiber.StatusUnauthorized {
		t.Fatalf("missing token: expected 401 got %d", status)
	}
	if status := callAdmin(t, app, "Bearer wrong"); status != fiber.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401 got %d", status)
	}
	if status := callAdmin(t, app, "Bearer s3cret"); status != fiber.StatusOK {
		t.Fatalf("valid token: expected 200 got %d", status)
	}
}

func TestAdminAuthDisabledWithoutHash(t *testing.T) {
	app := adminApp(t, "")
	if status := callAdmin(t, app, "Bearer anything"); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 got %d", status)
	}
}
