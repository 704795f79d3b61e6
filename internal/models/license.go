package models

import "time"

// License привязывает пользователя к одному физическому устройству.
// Сырое значение HWID никогда не хранится, только его хэш.
type License struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	HWIDHash   string    `json:"-"`
	DeviceName string    `json:"device_name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`
}

// Entitlement - положительный результат проверки лицензии.
type Entitlement struct {
	LicenseID string    `json:"-"`
	PlanType  string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
}
