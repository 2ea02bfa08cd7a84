package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"imagehive/internal/apperr"
	"imagehive/internal/config"
	"imagehive/internal/ids"
	"imagehive/internal/models"
	"imagehive/internal/repository"
	"imagehive/internal/security"
)

var ErrInvalidCredentials = apperr.New(apperr.KindValidation, "invalid credentials")

type userStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

type AuthService struct {
	users userStore
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewAuthService(users userStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users: users,
		cfg:   cfg,
		log:   log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return models.User{}, apperr.New(apperr.KindValidation, "email and password required")
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}

	return user, nil
}

type LoginInput struct {
	Email    string
	Password string
}

// Login verifies credentials and issues a bearer access token carrying
// the user's id and email.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (string, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return "", ErrInvalidCredentials
	}

	token, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		user.Email,
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return "", err
	}
	return token, nil
}
