// Package auth содержит логику регистрации и входа пользователей.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/password"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

var (
	// ErrUserExists - email уже зарегистрирован.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials - неизвестный email или неверный пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя.
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)

	// GetUserByEmail возвращает пользователя по email или storage.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUser возвращает пользователя по ID или storage.ErrNotFound.
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// AuthService отвечает за регистрацию и выдачу JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Register создает пользователя с хэшированным паролем. Статус подписки нового пользователя inactive.
func (s *AuthService) Register(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "auth.Register"
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.users.CreateUser(ctx, normalizeEmail(email), hashed)
	if errors.Is(err, storage.ErrConflict) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Login проверяет пароль пользователя и генерирует JWT.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (string, *models.User, error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := s.jwtMaker.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

// Profile возвращает пользователя вместе с кэшированным статусом подписки.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	const op = "auth.Profile"
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ValidateToken проверяет JWT и возвращает идентификатор пользователя.
func (s *AuthService) ValidateToken(_ context.Context, token string) (string, error) {
	const op = "auth.ValidateToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return claims.UserID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
