package users

import (
	"context"
	"fmt"
	"strings"

	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/constants"
	"agribid-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service holds DB and Redis for account operations. Redis is needed because
// banning a user destroys their live sessions.
type Service struct {
	DB  *gorm.DB
	Rdb *redis.Client
}

// CreateUserInput is the signup request. Role is fixed here forever: there is
// no role switching after the account exists.
type CreateUserInput struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Location string `json:"location"`
}

// CreateUser registers a farmer or buyer account. Admin accounts are seeded
// out of band and cannot be self-registered.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	trimmed := strings.TrimSpace(in.Fullname)
	if trimmed == "" || !validation.IsValidFullname(trimmed) {
		return nil, fmt.Errorf("full name is required (letters, spaces, hyphens, apostrophes): %w", auctionerrors.ErrValidation)
	}
	if in.Email == "" || !validation.IsValidEmail(in.Email) {
		return nil, fmt.Errorf("invalid email format: %w", auctionerrors.ErrValidation)
	}
	if in.Password == "" || !validation.IsValidPassword(in.Password) {
		return nil, fmt.Errorf("password must be 8+ characters with a letter, number, and special character: %w", auctionerrors.ErrValidation)
	}
	if !constants.IsSignupRole(in.Role) {
		return nil, fmt.Errorf("role must be farmer or buyer: %w", auctionerrors.ErrValidation)
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	var existing domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("email already registered: %w", auctionerrors.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Fullname:     trimmed,
		Email:        email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Status:       domain.UserActive,
		Location:     strings.TrimSpace(in.Location),
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// BanUser sets a user's status to banned and destroys their live sessions so
// the ban takes effect immediately. Idempotent: banning an already-banned user
// is a no-op success. Admin accounts cannot be banned, and admins cannot ban
// themselves.
func (s *Service) BanUser(ctx context.Context, userID, adminID uuid.UUID) (*domain.User, error) {
	if userID == adminID {
		return nil, fmt.Errorf("cannot ban own account: %w", auctionerrors.ErrValidation)
	}
	u, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == constants.Admin {
		return nil, fmt.Errorf("admin accounts cannot be banned: %w", auctionerrors.ErrAuthorization)
	}
	if u.Status == domain.UserBanned {
		return u, nil
	}
	if err := s.DB.WithContext(ctx).Model(u).Update("status", domain.UserBanned).Error; err != nil {
		return nil, err
	}
	u.Status = domain.UserBanned
	DestroyUserSessions(ctx, s.Rdb, userID.String())
	return u, nil
}

// ReinstateUser returns a banned user to active. No-op for already-active users.
func (s *Service) ReinstateUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status == domain.UserActive {
		return u, nil
	}
	if err := s.DB.WithContext(ctx).Model(u).Update("status", domain.UserActive).Error; err != nil {
		return nil, err
	}
	u.Status = domain.UserActive
	return u, nil
}

// ListUsers returns accounts for the admin dashboard, optionally filtered by role.
func (s *Service) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	if role != "" && !constants.IsValidRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, auctionerrors.ErrValidation)
	}
	q := s.DB.WithContext(ctx).Model(&domain.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var out []domain.User
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ViewUser returns one account; callers may only view themselves unless admin.
func (s *Service) ViewUser(ctx context.Context, userID, callerID uuid.UUID, callerRole string) (*domain.User, error) {
	if callerRole != constants.Admin && userID != callerID {
		return nil, fmt.Errorf("view user: %w", auctionerrors.ErrAuthorization)
	}
	return s.find(ctx, userID)
}

func (s *Service) find(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user %s: %w", userID, auctionerrors.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}
