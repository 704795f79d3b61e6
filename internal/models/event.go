package models

import "time"

// Типы событий платежного провайдера.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
)

// Event - проверенное событие провайдера с типизированной полезной нагрузкой.
// Заполнено ровно одно из полей Checkout, Subscription, Invoice;
// для нераспознанных типов все три пусты.
type Event struct {
	ID           string
	Type         string
	CreatedAt    time.Time
	Checkout     *CheckoutCompleted
	Subscription *SubscriptionSnapshot
	Invoice      *InvoicePaid
}

// CheckoutCompleted - полезная нагрузка checkout.session.completed.
// UserID может быть пустым: тогда владелец берется из ранее записанной связи.
type CheckoutCompleted struct {
	SessionID      string `validate:"required"`
	UserID         string `validate:"omitempty,uuid"`
	SubscriptionID string `validate:"omitempty"`
}

// InvoicePaid - полезная нагрузка invoice.payment_succeeded, только для наблюдаемости.
type InvoicePaid struct {
	InvoiceID      string `validate:"required"`
	SubscriptionID string
	AmountPaid     int64
	Currency       string
}
