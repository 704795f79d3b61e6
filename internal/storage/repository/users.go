package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// CreateUser сохраняет нового пользователя. Повторный email возвращает storage.ErrConflict.
func (s *Queries) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	const op = "storage.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO users (email, password_hash)
			  VALUES ($1, $2)
			  RETURNING id, email, password_hash, subscription_status, created_at`
	u := &models.User{}
	if err := s.q.QueryRowContext(ctx, query, email, passwordHash).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.SubscriptionStatus, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (s *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, email, password_hash, subscription_status, created_at
			  FROM users
			  WHERE email = $1`
	u := &models.User{}
	if err := s.q.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.SubscriptionStatus, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return u, nil
}

// GetUser возвращает пользователя по ID.
func (s *Queries) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, email, password_hash, subscription_status, created_at
			  FROM users
			  WHERE id = $1`
	u := &models.User{}
	if err := s.q.QueryRowContext(ctx, query, userID).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.SubscriptionStatus, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return u, nil
}

// LockUser блокирует строку пользователя до конца транзакции.
// Сериализует изменения лицензий и кэша статуса одного пользователя,
// не мешая вставке строк, ссылающихся на него.
func (s *Queries) LockUser(ctx context.Context, userID string) error {
	const op = "storage.LockUser"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	var id string
	if err := s.q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`, userID).Scan(&id); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// RefreshSubscriptionStatus пересчитывает кэшированный статус пользователя
// по самой поздней по созданию подписке и возвращает прежнее и новое значения.
// Пользователь без подписок - storage.ErrNotFound.
func (s *Queries) RefreshSubscriptionStatus(ctx context.Context, userID string) (string, string, error) {
	const op = "storage.RefreshSubscriptionStatus"
	if err := checkCtx(ctx, op); err != nil {
		return "", "", err
	}

	query := `WITH prev AS (
			      SELECT id, subscription_status FROM users WHERE id = $1 FOR NO KEY UPDATE
			  ), latest AS (
			      SELECT status FROM subscriptions
			      WHERE user_id = $1
			      ORDER BY created_at DESC, id DESC
			      LIMIT 1
			  )
			  UPDATE users u
			  SET subscription_status = latest.status
			  FROM prev, latest
			  WHERE u.id = prev.id
			  RETURNING prev.subscription_status, u.subscription_status`
	var previous, current string
	if err := s.q.QueryRowContext(ctx, query, userID).Scan(&previous, &current); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, classify(err))
	}
	return previous, current, nil
}
