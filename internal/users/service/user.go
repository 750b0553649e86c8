package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fleetdesk/internal/users/repository"
	"fleetdesk/pkg/config"
	apperrors "fleetdesk/pkg/errors"
	"fleetdesk/pkg/model"
	"fleetdesk/pkg/sanitizer"
)

const tokenTTL = 24 * time.Hour

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=2,max=60"`
	Email    string `json:"email" validate:"required,email"`
	Number   string `json:"number" validate:"omitempty"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*model.User, error)
	Login(ctx context.Context, input LoginInput) (string, *model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type userService struct {
	repo     repository.UserRepository
	cfg      *config.Config
	validate *validator.Validate
}

func NewUserService(repo repository.UserRepository, cfg *config.Config) UserService {
	return &userService{
		repo:     repo,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *userService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.Validation("invalid registration payload", map[string]any{"error": err.Error()})
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if s.cfg.AllowedEmailDomain != "" && !strings.HasSuffix(email, "@"+s.cfg.AllowedEmailDomain) {
		return nil, apperrors.Validation("email domain is not allowed", map[string]any{
			"allowedDomain": s.cfg.AllowedEmailDomain,
		})
	}

	number := ""
	if input.Number != "" {
		number = sanitizer.SanitizePhone(input.Number)
		if number == "" {
			return nil, apperrors.Validation("number is not a valid phone number", nil)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}

	user := &model.User{
		Username:     sanitizer.SanitizeName(input.Username),
		Email:        email,
		Number:       number,
		Role:         model.RoleUser,
		PasswordHash: string(hash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("a user with this email already exists")
		}
		return nil, apperrors.Internal("failed to create user", err)
	}

	s.cfg.Log.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *userService) Login(ctx context.Context, input LoginInput) (string, *model.User, error) {
	if err := s.validate.Struct(input); err != nil {
		return "", nil, apperrors.Validation("invalid login payload", map[string]any{"error": err.Error()})
	}

	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperrors.Unauthorized("invalid email or password")
		}
		return "", nil, apperrors.Internal("failed to look up user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return "", nil, apperrors.Unauthorized("invalid email or password")
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, apperrors.Internal("failed to issue token", err)
	}
	return token, user, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("user")
		case errors.Is(err, repository.ErrInvalidID):
			return nil, apperrors.InvalidInput("invalid user ID format")
		default:
			return nil, apperrors.Internal("failed to look up user", err)
		}
	}
	return user, nil
}

func (s *userService) issueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"number":   user.Number,
		"role":     user.Role,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}
