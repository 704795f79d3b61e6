package models

import "time"

// CheckoutLink связывает checkout-сессию провайдера с пользователем,
// инициировавшим оплату, а позже и с идентификатором созданной подписки.
type CheckoutLink struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"` // Пусто, пока провайдер не сообщил подписку
	CreatedAt      time.Time `json:"created_at"`
}
