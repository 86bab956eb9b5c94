package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradepipeline/internal/infrastructure/recordlog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 2 * time.Second

// Publisher is a logrus hook that ships every record of one stage to a
// fanout exchange. The service name is the routing key.
type Publisher struct {
	mu        sync.Mutex
	ch        *amqp.Channel
	exchange  string
	service   string
	formatter *recordlog.Formatter
}

var _ logrus.Hook = (*Publisher)(nil)

// NewPublisher opens a channel on conn and declares the exchange.
func NewPublisher(conn *amqp.Connection, exchange, service string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel for %s: %w", service, err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		ch:        ch,
		exchange:  exchange,
		service:   service,
		formatter: &recordlog.Formatter{Service: service},
	}, nil
}

func (p *Publisher) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (p *Publisher) Fire(entry *logrus.Entry) error {
	body, err := p.formatter.Format(entry)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("publisher is closed")
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.service, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    entry.Time,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
