package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

const routingKeyPrefix = "payments.notification."

// NotificationEvent is the message fanned out for every first-seen IPN delivery.
type NotificationEvent struct {
	NotificationID string            `json:"notification_id"`
	Provider       string            `json:"provider"`
	OrderReference string            `json:"order_reference,omitempty"`
	ReportedStatus string            `json:"reported_status,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
}

func NewNotificationEvent(record *entity.NotificationRecord) NotificationEvent {
	event := NotificationEvent{
		NotificationID: record.ID,
		Provider:       record.Provider,
		Params:         record.Params,
		ReceivedAt:     record.ReceivedAt,
	}
	if record.OrderReference != nil {
		event.OrderReference = *record.OrderReference
	}
	if record.ReportedStatus != nil {
		event.ReportedStatus = *record.ReportedStatus
	}
	return event
}

func RoutingKey(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "unknown"
	}
	return routingKeyPrefix + provider
}

// AMQPPublisher publishes notification events to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAMQPPublisher(rawURL, exchange string) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishNotification(ctx context.Context, record *entity.NotificationRecord) error {
	body, err := json.Marshal(NewNotificationEvent(record))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(record.Provider), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID,
		Timestamp:    record.ReceivedAt,
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct {
	Logger logrus.FieldLogger
}

func (p *NopPublisher) PublishNotification(_ context.Context, record *entity.NotificationRecord) error {
	if p.Logger != nil {
		p.Logger.WithField("notification_id", record.ID).Debug("Notification fan-out skipped, no broker configured")
	}
	return nil
}

func (p *NopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
