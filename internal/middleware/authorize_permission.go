package middleware

import (
	"agribid-backend/internal/pkg/constants"
	"agribid-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthorizePermission checks the session user's role against PermissionRoles.
// An unconfigured permission is a server error, not an open door; a role not in
// the allow list is 403. Authorization always fails closed.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := GetUserRole(c)
		if role == "" {
			return response.Error(c, "Authorization error", fiber.StatusInternalServerError, nil)
		}
		roles, ok := constants.PermissionRoles[permission]
		if !ok || len(roles) == 0 {
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, role) {
			return response.Error(c, "User is forbidden from performing this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}
