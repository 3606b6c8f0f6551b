package middleware

import (
	"agribid-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Unauthenticated requests are
// rejected before any feature logic runs.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", user)
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// GetUserID returns the session user's id, or "" when absent.
func GetUserID(c *fiber.Ctx) string {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := m["user_id"].(string)
	return id
}

// GetUserRole returns the session user's role, or "" when absent.
func GetUserRole(c *fiber.Ctx) string {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return ""
	}
	r, _ := m["role"].(string)
	return r
}
