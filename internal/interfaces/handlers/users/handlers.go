package users

import (
	userssvc "agribid-backend/internal/application/users"
	"agribid-backend/internal/middleware"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers holds dependencies for user admin endpoints.
type Handlers struct {
	Service *userssvc.Service
}

// BanUser POST /api/v1/users/:user_id/ban — admin bans an account and kills
// its sessions.
func (h *Handlers) BanUser(c *fiber.Ctx) error {
	adminID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return response.Error(c, "Invalid user_id format", fiber.StatusBadRequest, nil)
	}
	u, err := h.Service.BanUser(c.Context(), userID, adminID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "User banned", u, nil)
}

// ReinstateUser POST /api/v1/users/:user_id/reinstate — admin lifts a ban.
func (h *Handlers) ReinstateUser(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return response.Error(c, "Invalid user_id format", fiber.StatusBadRequest, nil)
	}
	u, err := h.Service.ReinstateUser(c.Context(), userID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "User reinstated", u, nil)
}

// ListUsers GET /api/v1/users?role= — admin dashboard account list.
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	out, err := h.Service.ListUsers(c.Context(), c.Query("role"))
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Users fetched successfully", out, fiber.Map{"count": len(out)})
}

// ViewUser GET /api/v1/users/:user_id — self or admin.
func (h *Handlers) ViewUser(c *fiber.Ctx) error {
	callerID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return response.Error(c, "Invalid user_id format", fiber.StatusBadRequest, nil)
	}
	u, err := h.Service.ViewUser(c.Context(), userID, callerID, middleware.GetUserRole(c))
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "User fetched successfully", u, nil)
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(middleware.GetUserID(c))
}
