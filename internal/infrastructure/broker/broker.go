package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tradepipeline/internal/config"
	"tradepipeline/internal/domain/entity/tracelog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer subscribes to the records exchange and forwards every record
// into the repository through a buffered batch writer.
type Consumer struct {
	cfg    config.RabbitMQConfig
	logger *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
	batcher *BatchWriter
}

// NewConsumer prepares a consumer for the given configuration.
func NewConsumer(cfg config.RabbitMQConfig, repo RecordWriter, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	batchCfg := BatchConfig{
		Size:    cfg.BatchSize,
		Timeout: cfg.BatchTimeout,
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		batcher: NewBatchWriter(batchCfg, repo, logger),
	}, nil
}

// Start establishes the AMQP connection and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn
	c.batcher.Run(ctx)

	if err := c.startStream(ctx); err != nil {
		c.Close(ctx)
		return err
	}
	c.logger.Infof("rabbitmq consumer started: exchange=%s", c.cfg.Exchange)
	return nil
}

// Close stops consumption, flushes pending batches, and releases resources.
func (c *Consumer) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
	if c.batcher == nil {
		return nil
	}
	return c.batcher.Stop(ctx)
}

func (c *Consumer) startStream(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare(c.cfg.Queue, c.cfg.Queue != "", c.cfg.Queue == "", c.cfg.Queue == "", false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", c.cfg.Exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue %s to %s: %w", queue.Name, c.cfg.Exchange, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, c.cfg.Queue == "", false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("start consume on %s: %w", queue.Name, err)
	}
	c.channel = ch
	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.WithField("exchange", c.cfg.Exchange)
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handleDelivery(&delivery); err != nil {
				log.WithError(err).WithField("service", delivery.RoutingKey).Warn("failed to process record")
				// A record that cannot be decoded will never decode; drop it.
				_ = delivery.Nack(false, !errors.Is(err, errUndecodable))
				continue
			}
			if err := delivery.Ack(false); err != nil {
				log.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

var errUndecodable = errors.New("undecodable record")

func (c *Consumer) handleDelivery(delivery *amqp.Delivery) error {
	var record tracelog.Record
	if err := json.Unmarshal(delivery.Body, &record); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if record.TraceID == "" {
		return fmt.Errorf("%w: missing trace_id", errUndecodable)
	}
	return c.batcher.AddRecord(&record)
}
