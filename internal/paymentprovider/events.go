// Package paymentprovider инкапсулирует работу со Stripe: проверку подписи
// вебхуков, разбор событий в типизированные модели и создание checkout-сессий.
package paymentprovider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// MetadataUserID - ключ метаданных сессии и подписки с идентификатором пользователя.
const MetadataUserID = "userId"

var (
	// ErrInvalidSignature - подпись вебхука не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload - событие подписано, но его содержимое не соответствует контракту типа.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Parser проверяет подпись события Stripe и разбирает его.
type Parser struct {
	secret   string
	plans    map[string]string
	validate *validator.Validate
}

// NewParser создаёт Parser. plans сопоставляет price id с типом плана.
func NewParser(webhookSecret string, plans map[string]string) *Parser {
	return &Parser{
		secret:   webhookSecret,
		plans:    plans,
		validate: validator.New(),
	}
}

// Parse проверяет заголовок Stripe-Signature и возвращает событие.
// Тело не разбирается, пока подпись не подтверждена.
func (p *Parser) Parse(payload []byte, sigHeader string) (*models.Event, error) {
	const op = "paymentprovider.Parse"

	raw, err := webhook.ConstructEvent(payload, sigHeader, p.secret)
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
		}
		// Подпись верна, но тело не разбирается как событие.
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidPayload, err)
	}

	event := &models.Event{
		ID:        raw.ID,
		Type:      raw.Type,
		CreatedAt: time.Unix(raw.Created, 0).UTC(),
	}
	if event.ID == "" {
		return nil, fmt.Errorf("%s: %w: empty event id", op, ErrInvalidPayload)
	}
	if raw.Data == nil {
		return nil, fmt.Errorf("%s: %w: no data object", op, ErrInvalidPayload)
	}

	switch raw.Type {
	case models.EventCheckoutSessionCompleted:
		err = p.decodeCheckout(raw.Data.Raw, event)
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated, models.EventSubscriptionDeleted:
		err = p.decodeSubscription(raw.Data.Raw, event)
	case models.EventInvoicePaymentSucceeded:
		err = p.decodeInvoice(raw.Data.Raw, event)
	default:
		return event, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidPayload, err)
	}
	return event, nil
}

func (p *Parser) decodeCheckout(data json.RawMessage, event *models.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return err
	}

	completed := &models.CheckoutCompleted{
		SessionID: sess.ID,
		UserID:    sess.Metadata[MetadataUserID],
	}
	if completed.UserID == "" {
		completed.UserID = sess.ClientReferenceID
	}
	if sess.Subscription != nil {
		completed.SubscriptionID = sess.Subscription.ID
	}
	if err := p.validate.Struct(completed); err != nil {
		return err
	}
	event.Checkout = completed
	return nil
}

func (p *Parser) decodeSubscription(data json.RawMessage, event *models.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return err
	}

	snap := &models.SubscriptionSnapshot{
		ProcessorSubscriptionID: sub.ID,
		UserID:                  sub.Metadata[MetadataUserID],
		Status:                  string(sub.Status),
		CurrentPeriodStart:      time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:        time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		EventCreatedAt:          event.CreatedAt,
	}
	if event.Type == models.EventSubscriptionDeleted {
		snap.Status = models.StatusCanceled
	}

	var price *stripe.Price
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		price = sub.Items.Data[0].Price
	}
	if price != nil {
		snap.PriceID = price.ID
	}
	snap.PlanType = p.planType(price)

	if err := p.validate.Struct(snap); err != nil {
		return err
	}
	event.Subscription = snap
	return nil
}

func (p *Parser) decodeInvoice(data json.RawMessage, event *models.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return err
	}

	paid := &models.InvoicePaid{
		InvoiceID:  inv.ID,
		AmountPaid: inv.AmountPaid,
		Currency:   string(inv.Currency),
	}
	if inv.Subscription != nil {
		paid.SubscriptionID = inv.Subscription.ID
	}
	if err := p.validate.Struct(paid); err != nil {
		return err
	}
	event.Invoice = paid
	return nil
}

// planType определяет тип плана: сначала по конфигурации, затем по интервалу
// оплаты цены, и в последнюю очередь по вхождению "year" в price id.
func (p *Parser) planType(price *stripe.Price) string {
	if price == nil {
		return models.PlanMonthly
	}
	if plan, ok := p.plans[price.ID]; ok && plan != "" {
		return plan
	}
	if price.Recurring != nil {
		switch price.Recurring.Interval {
		case stripe.PriceRecurringIntervalYear:
			return models.PlanAnnual
		case stripe.PriceRecurringIntervalMonth:
			return models.PlanMonthly
		}
	}
	if strings.Contains(strings.ToLower(price.ID), "year") {
		return models.PlanAnnual
	}
	return models.PlanMonthly
}
