package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Топология уведомлений о правах доступа.
const (
	ExchangeEntitlements     = "entitlements"
	RoutingKeyStatusChanged  = "subscription.status_changed"
	QueueStatusChangedMailer = "entitlements.status_changed"
)

// QueueConfig описывает очередь и ключ её привязки к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetEntitlementQueues возвращает очереди, которые читает внешний почтовый сервис.
func GetEntitlementQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueStatusChangedMailer, RoutingKey: RoutingKeyStatusChanged},
	}
}

// SetupChannel открывает канал и объявляет обменник entitlements и очереди queues.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		ExchangeEntitlements,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, ExchangeEntitlements, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}
	return ch, nil
}
