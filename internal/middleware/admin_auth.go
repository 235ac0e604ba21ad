package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth accepts requests whose bearer token matches the bcrypt hash. An
// empty hash disables the admin surface entirely.
func AdminAuth(tokenHash string) fiber.Handler {
	hash := []byte(strings.TrimSpace(tokenHash))
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			return fiber.NewError(http.StatusForbidden, "admin api disabled")
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}
