package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

const licenseColumns = `id, user_id, hwid_hash, device_name, is_active, created_at, last_used`

// FindActiveLicense возвращает активную лицензию пользователя для хэша устройства.
func (s *Queries) FindActiveLicense(ctx context.Context, userID, hwidHash string) (*models.License, error) {
	const op = "storage.FindActiveLicense"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + licenseColumns + `
			  FROM licenses
			  WHERE user_id = $1 AND hwid_hash = $2 AND is_active`
	lic, err := scanLicense(s.q.QueryRowContext(ctx, query, userID, hwidHash))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return lic, nil
}

// CreateLicense регистрирует новое активное устройство.
// Второе активное устройство с тем же хэшем возвращает storage.ErrConflict.
func (s *Queries) CreateLicense(ctx context.Context, userID, hwidHash, deviceName string) (*models.License, error) {
	const op = "storage.CreateLicense"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO licenses (user_id, hwid_hash, device_name)
			  VALUES ($1, $2, $3)
			  RETURNING ` + licenseColumns
	lic, err := scanLicense(s.q.QueryRowContext(ctx, query, userID, hwidHash, deviceName))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return lic, nil
}

// CountActiveLicenses возвращает число активных устройств пользователя.
func (s *Queries) CountActiveLicenses(ctx context.Context, userID string) (int, error) {
	const op = "storage.CountActiveLicenses"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var count int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM licenses WHERE user_id = $1 AND is_active`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	return count, nil
}

// ListLicenses возвращает все лицензии пользователя, включая деактивированные.
func (s *Queries) ListLicenses(ctx context.Context, userID string) ([]*models.License, error) {
	const op = "storage.ListLicenses"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.License, 0)
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, classify(err))
		}
		result = append(result, lic)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return result, nil
}

// TouchLicense обновляет время последнего использования лицензии.
func (s *Queries) TouchLicense(ctx context.Context, licenseID string, at time.Time) error {
	const op = "storage.TouchLicense"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx,
		`UPDATE licenses SET last_used = $2 WHERE id = $1`, licenseID, at); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// DeactivateLicense снимает активность с лицензии пользователя.
// Чужая, несуществующая или уже неактивная лицензия - storage.ErrNotFound.
func (s *Queries) DeactivateLicense(ctx context.Context, userID, licenseID string) error {
	const op = "storage.DeactivateLicense"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE licenses SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`,
		licenseID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func scanLicense(row scanner) (*models.License, error) {
	lic := &models.License{}
	if err := row.Scan(&lic.ID, &lic.UserID, &lic.HWIDHash, &lic.DeviceName,
		&lic.IsActive, &lic.CreatedAt, &lic.LastUsed); err != nil {
		return nil, err
	}
	return lic, nil
}
