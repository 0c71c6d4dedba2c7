package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

type notificationRecord struct {
	ID                     string            `json:"id"`
	Status                 string            `json:"status"`
	Provider               string            `json:"provider"`
	Source                 string            `json:"source"`
	Method                 string            `json:"method"`
	Payload                string            `json:"payload"`
	Params                 map[string]string `json:"params,omitempty"`
	ProviderNotificationID *string           `json:"providerNotificationId,omitempty"`
	OrderReference         *string           `json:"orderReference,omitempty"`
	ReportedStatus         *string           `json:"reportedStatus,omitempty"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

type NotificationRepository struct {
	store Store
}

func NewNotificationRepository(store Store) *NotificationRepository {
	return &NotificationRepository{store: store}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *entity.NotificationRecord) error {
	if notification == nil {
		return ErrInvalidRecord
	}
	return r.store.SaveRecord(ctx, KindNotifications, notification.ID, &notificationRecord{
		ID:                     notification.ID,
		Status:                 entity.NotificationStatusReceived,
		Provider:               notification.Provider,
		Source:                 string(notification.Source),
		Method:                 notification.Method,
		Payload:                notification.RawPayload,
		Params:                 notification.Params,
		ProviderNotificationID: notification.ProviderNotificationID,
		OrderReference:         notification.OrderReference,
		ReportedStatus:         notification.ReportedStatus,
		CreatedAt:              notification.ReceivedAt,
		UpdatedAt:              notification.ReceivedAt,
	})
}

// List returns up to limit notifications, newest first. A non-positive limit returns all.
func (r *NotificationRepository) List(ctx context.Context, limit int) ([]*entity.NotificationRecord, error) {
	items, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*entity.NotificationRecord, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, items[i])
	}
	return result, nil
}

// FindLatestByReference returns the newest notification that named reference, or nil.
func (r *NotificationRepository) FindLatestByReference(ctx context.Context, reference string) (*entity.NotificationRecord, error) {
	items, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].OrderReference != nil && *items[i].OrderReference == reference {
			return items[i], nil
		}
	}
	return nil, nil
}

func (r *NotificationRepository) all(ctx context.Context) ([]*entity.NotificationRecord, error) {
	records, err := r.store.LoadRecords(ctx, KindNotifications)
	if err != nil {
		return nil, err
	}

	items := make([]*entity.NotificationRecord, 0, len(records))
	for _, raw := range records {
		var record notificationRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode notification record: %w", err)
		}
		items = append(items, &entity.NotificationRecord{
			ID:                     record.ID,
			Provider:               record.Provider,
			Source:                 entity.NotificationSource(record.Source),
			Method:                 record.Method,
			RawPayload:             record.Payload,
			Params:                 record.Params,
			ProviderNotificationID: record.ProviderNotificationID,
			OrderReference:         record.OrderReference,
			ReportedStatus:         record.ReportedStatus,
			ReceivedAt:             record.CreatedAt,
		})
	}
	return items, nil
}
