// Package messaging publishes order events to RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the topic exchange order events go to.
const Exchange = "catering.orders"

const publishTimeout = 10 * time.Second

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends JSON messages to Exchange with the event type as the
// routing key.
type Publisher struct {
	mu   sync.Mutex
	ch   Channel
	conn *amqp.Connection
	log  *zap.Logger
}

// Dial connects to url, retrying with a linear backoff, and declares the
// exchange.
func Dial(url string, log *zap.Logger) (*Publisher, error) {
	const maxRetries = 5
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			var ch *amqp.Channel
			ch, err = conn.Channel()
			if err == nil {
				p, setupErr := newPublisher(ch, log)
				if setupErr == nil {
					p.conn = conn
					return p, nil
				}
				err = setupErr
			}
			conn.Close()
		}
		if i < maxRetries-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			log.Warn("rabbitmq connect failed, retrying", zap.Duration("wait", wait), zap.Error(err))
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", maxRetries, err)
}

// NewPublisher wraps an open channel and declares the exchange on it.
func NewPublisher(ch Channel, log *zap.Logger) (*Publisher, error) {
	return newPublisher(ch, log)
}

func newPublisher(ch Channel, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{ch: ch, log: log}, nil
}

// Publish sends msg as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.Debug("message published", zap.String("routing_key", routingKey), zap.Int("size", len(body)))
	return nil
}

// Close closes the channel and the connection, if the publisher owns one.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
