package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/brainbites/progression-engine/pkg/logger"
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("amqp: not connected")

// Connection manages the RabbitMQ connection with automatic reconnection.
type Connection struct {
	url        string
	exchange   string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
	log        *logger.Logger
}

// NewConnection dials RabbitMQ and declares the durable topic exchange.
func NewConnection(amqpURL, exchange string, log *logger.Logger) (*Connection, error) {
	if log == nil {
		log = logger.Nop()
	}
	c := &Connection{
		url:      amqpURL,
		exchange: exchange,
		log:      log.With(logger.Component("amqp")),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect establishes connection and channel.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		c.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", c.exchange, err)
	}

	c.conn = conn
	c.channel = ch
	go c.handleReconnect(conn)

	c.log.Info("connected to RabbitMQ", logger.String("url", sanitizeURL(c.url)), logger.String("exchange", c.exchange))
	return nil
}

// handleReconnect waits for the connection to drop and redials with
// exponential backoff.
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	amqpErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if amqpErr == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.channel = nil
	c.mu.Unlock()

	c.log.Warn("RabbitMQ connection closed, attempting to reconnect",
		logger.String("reason", amqpErr.Error()),
		logger.Int("reconnects", c.reconnects),
	)

	for i := 0; i < 10; i++ {
		c.reconnects++
		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		if c.isClosed() {
			return
		}
		if err := c.connect(); err != nil {
			c.log.Error("reconnection failed", logger.Err(err), logger.Int("attempt", i+1))
			continue
		}
		c.log.Info("reconnected to RabbitMQ", logger.Int("attempts", i+1))
		return
	}

	c.log.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Channel returns the current channel, or nil while reconnecting.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Exchange returns the exchange events are published to.
func (c *Connection) Exchange() string {
	return c.exchange
}

// IsConnected checks if the connection is active.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil
}

// Ping reports ErrNotConnected while the connection is down.
func (c *Connection) Ping(context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Publish sends one persistent JSON message with the given routing key.
func (c *Connection) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	ch := c.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	return ch.PublishWithContext(
		ctx,
		c.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// sanitizeURL drops credentials from an AMQP URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	return u.String()
}
