package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed — брокер закрыл канал доставки.
var ErrDeliveriesClosed = errors.New("deliveries channel closed")

// Handler — функция обработки события.
// Ненулевая ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное событие жизненного цикла.
type Delivery struct {
	// Message — распарсенный конверт события.
	Message Message

	// Raw — исходное AMQP сообщение.
	Raw amqp.Delivery
}

// Ack подтверждает обработку.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет событие. requeue=false уводит его в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer читает события жизненного цикла из очереди и передаёт
// их обработчику. Переживает обрывы соединения: после reconnect
// потребление перезапускается на свежем канале.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	stop context.CancelFunc
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — имя очереди событий.
	Queue string

	// Handler — обработчик событий.
	Handler Handler

	// Prefetch — глубина предвыборки (по умолчанию 1).
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start блокируется на потреблении до отмены контекста или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel

	for {
		err := c.consumeUntilBroken(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("consume interrupted, waiting for reconnect",
			"queue", c.queue,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, resuming consume", "queue", c.queue)
		}
	}
}

// Stop останавливает потребление.
func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
	}
}

// consumeUntilBroken потребляет события на одном канале
// до его закрытия или отмены контекста.
func (c *Consumer) consumeUntilBroken(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return errors.New("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consuming lifecycle events", "queue", c.queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.dispatch(ctx, raw)
		}
	}
}

// dispatch разбирает конверт события и вызывает обработчик.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed event envelope, dropping to DLQ",
			"queue", c.queue,
			"error", err,
		)
		raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		// Повторно доставленное событие не возвращаем в очередь:
		// второй провал подряд значит, что retry не поможет.
		requeue := !raw.Redelivered
		c.logger.Error("event handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"requeue", requeue,
			"error", err,
		)
		raw.Nack(false, requeue)
		return
	}

	raw.Ack(false)
}

// ParsePayload распаковывает payload события в конкретный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
