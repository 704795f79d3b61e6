// Package license отвечает на вопрос "может ли устройство пользователя работать сейчас"
// и управляет привязкой устройств к пользователю.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/hwid"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// defaultDeviceName подставляется, если клиент не передал название устройства.
const defaultDeviceName = "Unnamed device"

var (
	// ErrNotEntitled - у пользователя нет активной подписки с неистёкшим периодом.
	ErrNotEntitled = errors.New("no active subscription")
	// ErrDeviceNotLicensed - устройство не зарегистрировано за пользователем.
	ErrDeviceNotLicensed = errors.New("device not licensed")
	// ErrDeviceLimit - достигнут предел активных устройств.
	ErrDeviceLimit = errors.New("device limit reached")
	// ErrInvalidHWID - HWID пуст после нормализации.
	ErrInvalidHWID = errors.New("invalid hwid")
)

// Reader - чтения, выполняемые в одном согласованном снимке.
type Reader interface {
	FindEntitledSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
	FindActiveLicense(ctx context.Context, userID, hwidHash string) (*models.License, error)
}

// Writer - операции транзакции регистрации устройства.
type Writer interface {
	Reader
	LockUser(ctx context.Context, userID string) error
	CountActiveLicenses(ctx context.Context, userID string) (int, error)
	CreateLicense(ctx context.Context, userID, hwidHash, deviceName string) (*models.License, error)
}

// Store - хранилище лицензий.
type Store interface {
	WithinReadTx(ctx context.Context, fn func(r Reader) error) error
	WithinTx(ctx context.Context, fn func(w Writer) error) error
	TouchLicense(ctx context.Context, licenseID string, at time.Time) error
	ListLicenses(ctx context.Context, userID string) ([]*models.License, error)
	DeactivateLicense(ctx context.Context, userID, licenseID string) error
}

// Hasher вычисляет односторонний хэш HWID.
type Hasher interface {
	Hash(raw string) (string, error)
}

// Service проверяет и регистрирует лицензии устройств.
type Service struct {
	log        *slog.Logger
	store      Store
	hasher     Hasher
	maxDevices int
	now        func() time.Time
}

// New создаёт Service. maxDevices ограничивает число активных устройств пользователя.
func New(log *slog.Logger, store Store, hasher Hasher, maxDevices int) *Service {
	return &Service{
		log:        log,
		store:      store,
		hasher:     hasher,
		maxDevices: maxDevices,
		now:        time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Validate проверяет, что у пользователя есть действующая подписка
// и устройство с данным HWID за ним зарегистрировано.
// Обновление last_used выполняется после ответа и на результат не влияет.
func (s *Service) Validate(ctx context.Context, userID, rawHWID string) (*models.Entitlement, error) {
	const op = "license.Validate"

	hash, err := s.hash(rawHWID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	var result *models.Entitlement
	err = s.store.WithinReadTx(ctx, func(r Reader) error {
		sub, err := entitledSubscription(ctx, r, userID, now)
		if err != nil {
			return err
		}
		lic, err := r.FindActiveLicense(ctx, userID, hash)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrDeviceNotLicensed
		}
		if err != nil {
			return err
		}
		result = &models.Entitlement{
			LicenseID: lic.ID,
			PlanType:  sub.PlanType,
			ExpiresAt: sub.CurrentPeriodEnd,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.TouchLicense(ctx, result.LicenseID, now); err != nil {
		s.log.Warn("failed to update license last_used",
			slog.String("op", op),
			slog.String("license_id", result.LicenseID),
			sl.Err(err),
		)
	}
	return result, nil
}

// Register привязывает устройство к пользователю с действующей подпиской.
// Повторная регистрация того же устройства возвращает существующую лицензию и created == false.
func (s *Service) Register(ctx context.Context, userID, rawHWID, deviceName string) (*models.License, bool, error) {
	const op = "license.Register"

	hash, err := s.hash(rawHWID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		deviceName = defaultDeviceName
	}

	now := s.now().UTC()
	var (
		lic     *models.License
		created bool
	)
	err = s.store.WithinTx(ctx, func(w Writer) error {
		// Блокировка сериализует регистрации одного пользователя, иначе предел устройств можно обойти.
		if err := w.LockUser(ctx, userID); err != nil {
			return err
		}
		if _, err := entitledSubscription(ctx, w, userID, now); err != nil {
			return err
		}

		existing, err := w.FindActiveLicense(ctx, userID, hash)
		if err == nil {
			lic = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		count, err := w.CountActiveLicenses(ctx, userID)
		if err != nil {
			return err
		}
		if count >= s.maxDevices {
			return ErrDeviceLimit
		}

		lic, err = w.CreateLicense(ctx, userID, hash, deviceName)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if created {
		s.log.Info("device registered",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.String("license_id", lic.ID),
		)
	}
	return lic, created, nil
}

// List возвращает все лицензии пользователя.
func (s *Service) List(ctx context.Context, userID string) ([]*models.License, error) {
	const op = "license.List"
	items, err := s.store.ListLicenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// Deactivate отвязывает устройство. Чужая или неактивная лицензия - storage.ErrNotFound.
func (s *Service) Deactivate(ctx context.Context, userID, licenseID string) error {
	const op = "license.Deactivate"
	if err := s.store.DeactivateLicense(ctx, userID, licenseID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("device deactivated",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("license_id", licenseID),
	)
	return nil
}

func (s *Service) hash(rawHWID string) (string, error) {
	hash, err := s.hasher.Hash(rawHWID)
	if errors.Is(err, hwid.ErrEmpty) {
		return "", fmt.Errorf("%w: %w", ErrInvalidHWID, err)
	}
	return hash, err
}

func entitledSubscription(ctx context.Context, r Reader, userID string, now time.Time) (*models.Subscription, error) {
	sub, err := r.FindEntitledSubscription(ctx, userID, now)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotEntitled
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}
