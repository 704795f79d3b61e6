package models

import "time"

// Типы планов.
const (
	PlanMonthly = "monthly"
	PlanAnnual  = "annual"
)

// Subscription описывает один жизненный цикл подписки провайдера,
// принадлежащий ровно одному пользователю.
type Subscription struct {
	ID                      string    `json:"id"`
	UserID                  string    `json:"user_id"`
	ProcessorSubscriptionID string    `json:"processor_subscription_id"`
	PlanType                string    `json:"plan_type"`
	Status                  string    `json:"status"`
	CurrentPeriodStart      time.Time `json:"current_period_start"`
	CurrentPeriodEnd        time.Time `json:"current_period_end"`
	LastEventAt             time.Time `json:"last_event_at"`
	CreatedAt               time.Time `json:"created_at"`
}

// Entitled сообщает, дает ли подписка право на работу в момент now.
func (s Subscription) Entitled(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.CurrentPeriodEnd)
}

// SubscriptionSnapshot - состояние подписки, извлеченное из события провайдера.
// Применяется к хранилищу атомарно; при отсутствии владельца откладывается.
// UserID заполнен, только если провайдер вернул его в метаданных подписки.
type SubscriptionSnapshot struct {
	ProcessorSubscriptionID string    `validate:"required"`
	UserID                  string    `validate:"omitempty,uuid"`
	Status                  string    `validate:"required"`
	PriceID                 string    `validate:"omitempty"`
	PlanType                string    `validate:"required"`
	CurrentPeriodStart      time.Time `validate:"required"`
	CurrentPeriodEnd        time.Time `validate:"required,gtfield=CurrentPeriodStart"`
	EventCreatedAt          time.Time `validate:"required"`
}
