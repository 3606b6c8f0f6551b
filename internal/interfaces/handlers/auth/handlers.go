package auth

import (
	"context"

	authsvc "agribid-backend/internal/application/auth"
	userssvc "agribid-backend/internal/application/users"
	"agribid-backend/internal/middleware"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	UserFinder authsvc.UserFinder
	Users      *userssvc.Service
	Rdb        *redis.Client
	Config     middleware.SessionConfig
}

// Signup POST /api/v1/auth/signup — register a farmer or buyer account.
func (h *Handlers) Signup(c *fiber.Ctx) error {
	if h.Users == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var in userssvc.CreateUserInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	u, err := h.Users.CreateUser(c.Context(), in)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.SuccessCreated(c, "Account created successfully", fiber.Map{
		"user": fiber.Map{
			"user_id":  u.UserID.String(),
			"fullname": u.Fullname,
			"email":    u.Email,
			"role":     u.Role,
		},
	}, nil)
}

// Login POST /api/v1/auth/login — authenticate, create session, set cookie.
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req authsvc.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}
	if req.Email == "" || req.Password == "" {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}

	user, err := h.UserFinder.FindByEmailAndPassword(req.Email, req.Password)
	if err != nil {
		switch err {
		case authsvc.ErrEmailPasswordRequired:
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case authsvc.ErrInvalidCredentials:
			return response.Error(c, err.Error(), fiber.StatusUnauthorized, nil)
		case authsvc.ErrAccountDisabled:
			return response.Error(c, err.Error(), fiber.StatusForbidden, nil)
		default:
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}

	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:   user.UserID.String(),
		Fullname: user.Fullname,
		Email:    user.Email,
		Role:     user.Role,
	})

	// Index the session per user so a ban can destroy it.
	ctx := context.Background()
	if err := h.Rdb.SAdd(ctx, userssvc.UserSessionsPrefix+user.UserID.String(), sessionID).Err(); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)

	return response.Success(c, "Login successful", fiber.Map{
		"user": fiber.Map{
			"user_id":  user.UserID.String(),
			"fullname": user.Fullname,
			"email":    user.Email,
			"role":     user.Role,
		},
	}, nil)
}

// Me GET /api/v1/auth/me — return the current session user.
func (h *Handlers) Me(c *fiber.Ctx) error {
	user, err := authsvc.VerifyUser(middleware.GetUser(c))
	if err != nil {
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

// Logout DELETE /api/v1/auth/logout — drop the session and clear the cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	sessionUser := middleware.GetUser(c)
	ctx := context.Background()

	if sessionUser != nil && sessionID != "" {
		if m, ok := sessionUser.(map[string]interface{}); ok {
			if userID, _ := m["user_id"].(string); userID != "" {
				_ = h.Rdb.SRem(ctx, userssvc.UserSessionsPrefix+userID, sessionID).Err()
			}
		}
	}
	if sessionID != "" {
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}
	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logout successful", nil, nil)
}
