package repository

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const notificationMarkerPrefix = "payments:ipn:seen:"

// NotificationMarker remembers which IPN deliveries were already processed.
// A nil client makes every delivery a first delivery.
type NotificationMarker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewNotificationMarker(client *redis.Client, ttl time.Duration) *NotificationMarker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NotificationMarker{client: client, ttl: ttl}
}

// MarkFirstDelivery returns true the first time key is seen for provider within the TTL.
func (m *NotificationMarker) MarkFirstDelivery(ctx context.Context, provider, key string) (bool, error) {
	if m == nil || m.client == nil || strings.TrimSpace(key) == "" {
		return true, nil
	}
	return m.client.SetNX(ctx, m.key(provider, key), time.Now().UTC().Unix(), m.ttl).Result()
}

// Release forgets a delivery so the next redelivery of it is processed again.
func (m *NotificationMarker) Release(ctx context.Context, provider, key string) error {
	if m == nil || m.client == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	return m.client.Del(ctx, m.key(provider, key)).Err()
}

func (m *NotificationMarker) key(provider, key string) string {
	return notificationMarkerPrefix + provider + ":" + key
}
