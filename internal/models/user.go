// Package models содержит доменные структуры сервиса лицензий:
// пользователя, подписку, лицензию устройства, связь checkout-сессии
// и типизированные события платежного провайдера.
package models

import "time"

// Статусы подписки. Совпадают со словарем статусов Stripe,
// StatusInactive используется только в кэше пользователя до первой оплаты.
const (
	StatusInactive          = "inactive"
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusUnpaid            = "unpaid"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID                 string    `json:"id"`                  // Неизменяемый идентификатор (UUID)
	Email              string    `json:"email"`               // Электронная почта (уникальная)
	PasswordHash       string    `json:"-"`                   // Хэш пароля пользователя
	SubscriptionStatus string    `json:"subscription_status"` // Денормализованный статус последней подписки
	CreatedAt          time.Time `json:"created_at"`
}

// StatusChange описывает смену кэшированного статуса подписки пользователя.
type StatusChange struct {
	UserID                  string    `json:"user_id"`
	ProcessorSubscriptionID string    `json:"processor_subscription_id"`
	Previous                string    `json:"previous"`
	Current                 string    `json:"current"`
	OccurredAt              time.Time `json:"occurred_at"`
}

// Changed сообщает, изменился ли статус.
func (c StatusChange) Changed() bool {
	return c.Previous != c.Current
}
