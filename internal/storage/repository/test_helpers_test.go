package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/migrations"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его ID
func (f *TestDataFactory) CreateUser(t *testing.T, email string) string {
	t.Helper()
	var id string
	err := f.storage.DB.QueryRow(`INSERT INTO users (email, password_hash) VALUES ($1, 'hash') RETURNING id`,
		email).Scan(&id)
	require.NoError(t, err)
	return id
}

// Snapshot возвращает снимок подписки с периодом в месяц от start
func Snapshot(procID, status string, start, eventAt time.Time) models.SubscriptionSnapshot {
	return models.SubscriptionSnapshot{
		ProcessorSubscriptionID: procID,
		Status:                  status,
		PriceID:                 "price_monthly",
		PlanType:                models.PlanMonthly,
		CurrentPeriodStart:      start,
		CurrentPeriodEnd:        start.AddDate(0, 1, 0),
		EventCreatedAt:          eventAt,
	}
}

// TestVerification содержит общие функции для проверки результатов тестов
type TestVerification struct {
	storage *Storage
}

// NewTestVerification создает новый объект для проверки результатов
func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// VerifyUserSubscriptionStatus проверяет кэшированный статус подписки пользователя
func (v *TestVerification) VerifyUserSubscriptionStatus(t *testing.T, userID, expectedStatus string) {
	t.Helper()
	var status string
	err := v.storage.DB.QueryRow("SELECT subscription_status FROM users WHERE id = $1", userID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, status)
}

// CountRows возвращает число строк в таблице
func (v *TestVerification) CountRows(t *testing.T, table string) int {
	t.Helper()
	var count int
	err := v.storage.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	require.NoError(t, err)
	return count
}

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(connStr, config.Database{MaxOpenConns: 10})
	require.NoError(t, err, "failed to create storage")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}
