package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/fitback/internal/logging"
)

const maxBackoff = 30 * time.Second

// Consumer drains the notification queue and mails each message.  A message
// that cannot be decoded or sent is rejected without requeue so one bad
// payload cannot spin the loop.
type Consumer struct {
	URL      string
	Queue    string
	Mailer   Mailer
	AppName  string
	Prefetch int
	Log      logging.Logger
}

func NewConsumer(url, queue string, m Mailer, log logging.Logger) *Consumer {
	return &Consumer{URL: url, Queue: queue, Mailer: m, AppName: "FitBack", Prefetch: 20, Log: log}
}

// Run keeps a consumer attached to the broker, reconnecting with exponential
// backoff, until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn(ctx, "notify consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn(ctx, "notify consumer: consume loop ended, reconnecting", "error", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.Prefetch, 0, false); err != nil {
		c.Log.Warn(ctx, "notify consumer: set QoS failed", "error", err)
	}
	if err := declareQueue(ch, c.Queue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Log.Info(ctx, "notify consumer: attached", "queue", c.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.Log.Error(ctx, "notify consumer: handle message failed", "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one queued notification and mails it.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if n.To == "" {
		return errors.New("notification without recipient")
	}
	msg, err := Render(n, c.AppName)
	if err != nil {
		return err
	}
	if err := c.Mailer.Send(ctx, msg); err != nil {
		return err
	}
	c.Log.Info(ctx, "notification sent", "id", n.ID, "kind", n.Kind)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
