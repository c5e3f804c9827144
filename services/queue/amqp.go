// Package queuesvc carries notifications through RabbitMQ.
package queuesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/notification"
)

const (
	ExchangeName = "bitacora.events"
	QueueName    = "bitacora.notifications"
	RoutingKey   = "notification.created"

	publishTimeout = 5 * time.Second
)

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "opening channel")
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "declaring exchange")
	}
	return conn, ch, nil
}

// Publisher is a notification.Dispatcher publishing to RabbitMQ.
// When publishing fails the notification is handed to `fallback`.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	fallback notification.Dispatcher
	logger   core.Logger
}

var _ notification.Dispatcher = (*Publisher)(nil)

func NewPublisher(url string, fallback notification.Dispatcher, logger core.Logger) (*Publisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch, fallback: fallback, logger: logger}, nil
}

func (p *Publisher) publish(nn notification.NewNotification) error {
	body, err := json.Marshal(newMessage(nn))
	if err != nil {
		return errors.Wrap(err, "encoding notification")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, ExchangeName, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *Publisher) Dispatch(nn notification.NewNotification) {
	if err := p.publish(nn); err != nil {
		p.logger.Error(fmt.Sprintf("queuesvc.Dispatch: %v", err), err)
		if p.fallback != nil {
			p.fallback.Dispatch(nn)
		}
	}
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// message is the wire format of a queued notification.
type message struct {
	SenderID      string `json:"sender_id"`
	SenderRole    string `json:"sender_role"`
	RecipientID   string `json:"recipient_id,omitempty"`
	RecipientRole string `json:"recipient_role"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	Email         bool   `json:"email,omitempty"`
}

func newMessage(nn notification.NewNotification) message {
	return message{
		SenderID:      nn.SenderID,
		SenderRole:    nn.SenderRole,
		RecipientID:   nn.RecipientID,
		RecipientRole: nn.RecipientRole,
		Subject:       nn.Subject,
		Body:          nn.Body,
		Email:         nn.Email,
	}
}

func (m message) notification() notification.NewNotification {
	return notification.NewNotification{
		SenderID:      m.SenderID,
		SenderRole:    m.SenderRole,
		RecipientID:   m.RecipientID,
		RecipientRole: m.RecipientRole,
		Subject:       m.Subject,
		Body:          m.Body,
		Email:         m.Email,
	}
}
