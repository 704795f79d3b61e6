package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
)

// ErrCheckoutUnavailable - создание checkout-сессии не настроено (нет секретного ключа).
var ErrCheckoutUnavailable = errors.New("checkout is not configured")

// CheckoutSession - созданная сессия оплаты.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Client создаёт checkout-сессии Stripe в режиме подписки.
type Client struct {
	sessions   session.Client
	successURL string
	cancelURL  string
}

// NewClient создаёт клиент со стандартным API backend Stripe.
func NewClient(secretKey, successURL, cancelURL string) *Client {
	return NewClientWithBackend(stripe.GetBackend(stripe.APIBackend), secretKey, successURL, cancelURL)
}

// NewClientWithBackend создаёт клиент поверх заданного backend.
func NewClientWithBackend(backend stripe.Backend, secretKey, successURL, cancelURL string) *Client {
	return &Client{
		sessions:   session.Client{B: backend, Key: secretKey},
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateCheckout создаёт сессию оплаты цены priceID для пользователя userID.
// Идентификатор пользователя передаётся в метаданных сессии и будущей подписки.
func (c *Client) CreateCheckout(ctx context.Context, userID, priceID string) (*CheckoutSession, error) {
	const op = "paymentprovider.CreateCheckout"
	if c.sessions.Key == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrCheckoutUnavailable)
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:         stripe.String(c.successURL),
		CancelURL:          stripe.String(c.cancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID:  stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{},
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID)
	params.SubscriptionData.AddMetadata(MetadataUserID, userID)

	sess, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &CheckoutSession{ID: sess.ID}
	if sess.LastResponse != nil {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(sess.LastResponse.RawJSON, &body); err == nil {
			result.URL = body.URL
		}
	}
	return result, nil
}
