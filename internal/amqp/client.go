package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"gagyebu/internal/log"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// Client publishes and consumes ledger change events on a fanout exchange.
// Every instance binds its own exclusive queue, so each event reaches all
// instances once.
type Client struct {
	url          string
	exchangeName string
	queueName    string // last server-assigned consumer queue, informational
	origin       string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	breaker *breaker

	published atomic.Int64
	consumed  atomic.Int64
}

// NewClient dials url and declares the exchange. origin identifies this
// instance so it can skip its own events.
func NewClient(url, exchangeName, origin string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		origin:       origin,
		logger:       logger.WithComponent(log.ComponentAMQP),
		breaker:      newBreaker(maxFailures, openTimeout),
	}
	if _, err := c.ensureChannel(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) log() *log.Logger {
	if c.logger == nil {
		return log.Default().WithComponent(log.ComponentAMQP)
	}
	return c.logger
}

// Origin returns the instance identifier stamped on published events
func (c *Client) Origin() string { return c.origin }

func (c *Client) dial() (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

// ensureChannel returns the publishing channel, reconnecting if needed
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.channel, nil
	}
	c.resetLocked()

	conn, ch, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.conn, c.channel = conn, ch
	return ch, nil
}

func (c *Client) resetLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// PublishChange publishes ev. Callers treat failures as non-fatal.
func (c *Client) PublishChange(ctx context.Context, ev ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.breaker.allow() {
		return errors.New("publish change: circuit breaker is open")
	}
	if ev.Origin == "" {
		ev.Origin = c.origin
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := c.ensureChannel()
	if err != nil {
		c.failed()
		return fmt.Errorf("publish change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   ev.Timestamp,
			Body:        body,
		},
	)
	if err != nil {
		c.failed()
		if isConnectionError(err) {
			c.mu.Lock()
			c.resetLocked()
			c.mu.Unlock()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.breaker.success()
	c.published.Add(1)
	c.log().DebugContext(ctx, "Published change event",
		log.FieldUserID, ev.UserID,
		log.FieldDate, ev.Date,
		log.FieldOperation, ev.Op)
	return nil
}

// ConsumeChanges delivers events from other instances to handler until ctx
// ends, reconnecting with exponential backoff.
func (c *Client) ConsumeChanges(ctx context.Context, handler func(context.Context, ChangeEvent) error) error {
	attempt := 0
	for {
		started, err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if started {
			attempt = 0
		}
		wait := backoff(attempt)
		c.log().Warn("Change consumer interrupted, reconnecting",
			log.FieldError, err,
			"retry_in", wait.String())
		attempt++

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, ChangeEvent) error) (bool, error) {
	conn, ch, err := c.dial()
	if err != nil {
		return false, err
	}
	defer conn.Close()
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return false, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		return false, fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}
	c.mu.Lock()
	c.queueName = q.Name
	c.mu.Unlock()
	c.log().Info("Consuming change events", "queue", q.Name, "exchange", c.exchangeName)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return true, errors.New("message channel closed")
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, ChangeEvent) error) {
	c.process(ctx, d.Body, &d, handler)
}

func (c *Client) process(ctx context.Context, body []byte, ack acknowledger, handler func(context.Context, ChangeEvent) error) {
	ev, err := ChangeEventFromJSON(body)
	if err != nil {
		c.log().Error("Failed to decode change event", log.FieldError, err)
		_ = ack.Nack(false, false)
		return
	}
	if ev.Origin == c.origin {
		_ = ack.Ack(false)
		return
	}
	if err := handler(ctx, ev); err != nil {
		c.log().Error("Failed to handle change event",
			log.FieldError, err,
			log.FieldUserID, ev.UserID)
		_ = ack.Nack(false, false)
		return
	}
	c.consumed.Add(1)
	_ = ack.Ack(false)
}

// Stats returns published and consumed event counts
func (c *Client) Stats() (published, consumed int64) {
	return c.published.Load(), c.consumed.Load()
}

func (c *Client) failed() {
	if c.breaker.failure() {
		c.log().Warn("AMQP circuit breaker opened", "threshold", c.breaker.threshold)
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Close closes the publishing connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
