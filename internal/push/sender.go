package push

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notification is one push job handed to the gateway. The photo is
// referenced by URL, matching the live-channel contract.
type Notification struct {
	Type       string `json:"type"`
	MomentID   string `json:"moment_id"`
	PhotoURL   string `json:"photo_url"`
	SenderName string `json:"sender_name"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"`
}

// Sender delivers a notification to a registered push address. Any
// failure is non-fatal to the caller; the pipeline logs and falls back.
type Sender interface {
	SendPush(ctx context.Context, address string, notification Notification) error
}

// NewSender builds an AMQP-backed gateway publisher or a noop sender
// when AMQP is disabled.
func NewSender(amqpURL, exchange string) Sender {
	if amqpURL == "" {
		log.Printf("push gateway disabled, using noop: empty amqp url")
		return noopSender{reason: "empty amqp url"}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Printf("push gateway disabled, using noop: %v", err)
		return noopSender{reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("push gateway disabled, using noop: %v", err)
		_ = conn.Close()
		return noopSender{reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		log.Printf("push gateway disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopSender{reason: err.Error()}
	}

	log.Printf("push gateway connected exchange=%s", exchange)
	return &amqpSender{conn: conn, ch: ch, exchange: exchange}
}

type amqpSender struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

type pushJob struct {
	Address      string       `json:"address"`
	Notification Notification `json:"notification"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
}

func (s *amqpSender) SendPush(ctx context.Context, address string, notification Notification) error {
	body, err := json.Marshal(pushJob{
		Address:      address,
		Notification: notification,
		EnqueuedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	err = s.ch.PublishWithContext(ctx, s.exchange, "push."+notification.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		log.Printf("push publish failed: %v", err)
	}
	return err
}

func (s *amqpSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type noopSender struct {
	reason string
}

func (noopSender) SendPush(_ context.Context, address string, notification Notification) error {
	log.Printf("push noop send address=%s type=%s moment=%s", address, notification.Type, notification.MomentID)
	return nil
}

// SenderMode reports the sender mode for logging.
func SenderMode(s Sender) string {
	switch s.(type) {
	case *amqpSender:
		return "amqp"
	case noopSender:
		return "noop"
	default:
		return "unknown"
	}
}
