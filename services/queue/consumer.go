package queuesvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/notification"
)

// Deduper tells whether a message is seen for the first time.
type Deduper interface {
	AcquireOnce(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

type nopDeduper struct{}

func (nopDeduper) AcquireOnce(context.Context, string) bool { return true }
func (nopDeduper) Release(context.Context, string)          {}

// Consumer stores the queued notifications through a notification.Handler.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler notification.Handler
	dedup   Deduper
	logger  core.Logger
}

// NewConsumer declares & binds the notifications queue. `dedup` may be nil.
func NewConsumer(url string, handler notification.Handler, dedup Deduper, logger core.Logger) (*Consumer, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring queue")
	}
	if err := ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "binding queue")
	}
	return newConsumer(conn, ch, handler, dedup, logger), nil
}

func newConsumer(conn *amqp.Connection, ch *amqp.Channel, handler notification.Handler, dedup Deduper, logger core.Logger) *Consumer {
	if dedup == nil {
		dedup = nopDeduper{}
	}
	return &Consumer{conn: conn, channel: ch, handler: handler, dedup: dedup, logger: logger}
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(QueueName, "bitacora-api", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "registering consumer")
	}
	c.logger.Info("queuesvc.Consumer: consuming", map[string]interface{}{"queue": QueueName})

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.ack(d, c.handle(ctx, d.MessageId, d.Body, d.Redelivered))
		}
	}
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

func (c *Consumer) ack(d amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = d.Ack(false)
	case outcomeRequeue:
		err = d.Nack(false, true)
	case outcomeDrop:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.logger.Error(fmt.Sprintf("queuesvc.Consumer.ack: %v", err), err)
	}
}

// handle delivers one message. A failed delivery is retried once.
func (c *Consumer) handle(ctx context.Context, msgID string, body []byte, redelivered bool) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Sprintf("queuesvc.Consumer.handle: panic: %v", r))
			o = outcomeDrop
		}
	}()

	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Error(fmt.Sprintf("queuesvc.Consumer.handle: %v", err), err)
		return outcomeDrop
	}

	key := "dedup:notification:" + msgID
	if msgID != "" && !c.dedup.AcquireOnce(ctx, key) {
		c.logger.Info("queuesvc.Consumer.handle: duplicate skipped", map[string]interface{}{"message_id": msgID})
		return outcomeAck
	}

	if notification.Deliver(c.handler, c.logger, msg.notification()) {
		return outcomeAck
	}
	if redelivered {
		return outcomeDrop
	}
	if msgID != "" {
		c.dedup.Release(ctx, key)
	}
	return outcomeRequeue
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
