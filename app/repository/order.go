package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

type payerRecord struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Country string `json:"country,omitempty"`
}

type orderRecord struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"paymentStatus"`
	Provider          string            `json:"provider"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Payer             payerRecord       `json:"payer"`
	Frequency         string            `json:"frequency"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ChannelID         string            `json:"channelId,omitempty"`
	ProviderReference *string           `json:"providerReference,omitempty"`
	RedirectURL       *string           `json:"redirectUrl,omitempty"`
	FailureReason     *string           `json:"failureReason,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// OrderRepository stores every order transition as a new snapshot; the last snapshot per id is current.
type OrderRepository struct {
	store Store
}

func NewOrderRepository(store Store) *OrderRepository {
	return &OrderRepository{store: store}
}

func (r *OrderRepository) Append(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return ErrInvalidRecord
	}
	return r.store.SaveRecord(ctx, KindOrders, order.ID, toOrderRecord(order))
}

// FindByReference matches the order id or the provider's own reference for it.
func (r *OrderRepository) FindByReference(ctx context.Context, reference string) (*entity.Order, error) {
	latest, order, err := r.latest(ctx)
	if err != nil {
		return nil, err
	}
	if item, ok := latest[reference]; ok {
		return item, nil
	}
	for _, id := range order {
		item := latest[id]
		if item.ProviderReference != nil && *item.ProviderReference == reference {
			return item, nil
		}
	}
	return nil, nil
}

func (r *OrderRepository) History(ctx context.Context, id string) ([]*entity.Order, error) {
	records, err := r.store.LoadRecords(ctx, KindOrders)
	if err != nil {
		return nil, err
	}

	items := make([]*entity.Order, 0)
	for _, raw := range records {
		item, err := decodeOrder(raw)
		if err != nil {
			return nil, err
		}
		if item.ID == id {
			items = append(items, item)
		}
	}
	return items, nil
}

// ListLatest returns the current snapshot of every order in first-seen order.
func (r *OrderRepository) ListLatest(ctx context.Context) ([]*entity.Order, error) {
	latest, order, err := r.latest(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]*entity.Order, 0, len(order))
	for _, id := range order {
		items = append(items, latest[id])
	}
	return items, nil
}

func (r *OrderRepository) latest(ctx context.Context) (map[string]*entity.Order, []string, error) {
	records, err := r.store.LoadRecords(ctx, KindOrders)
	if err != nil {
		return nil, nil, err
	}

	latest := make(map[string]*entity.Order, len(records))
	order := make([]string, 0, len(records))
	for _, raw := range records {
		item, err := decodeOrder(raw)
		if err != nil {
			return nil, nil, err
		}
		if _, seen := latest[item.ID]; !seen {
			order = append(order, item.ID)
		}
		latest[item.ID] = item
	}
	return latest, order, nil
}

func decodeOrder(raw json.RawMessage) (*entity.Order, error) {
	var record orderRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode order record: %w", err)
	}
	return fromOrderRecord(&record), nil
}

func toOrderRecord(order *entity.Order) *orderRecord {
	return &orderRecord{
		ID:            order.ID,
		Status:        string(order.State),
		PaymentStatus: string(order.PaymentStatus),
		Provider:      order.Provider,
		Amount:        order.Intent.Amount,
		Currency:      order.Intent.Currency,
		Payer: payerRecord{
			Name:    order.Intent.Payer.Name,
			Email:   order.Intent.Payer.Email,
			Phone:   order.Intent.Payer.Phone,
			Country: order.Intent.Payer.Country,
		},
		Frequency:         string(order.Intent.Frequency),
		Description:       order.Intent.Description,
		Metadata:          order.Intent.Metadata,
		ChannelID:         order.ChannelID,
		ProviderReference: order.ProviderReference,
		RedirectURL:       order.RedirectURL,
		FailureReason:     order.FailureReason,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func fromOrderRecord(record *orderRecord) *entity.Order {
	return &entity.Order{
		ID:       record.ID,
		Provider: record.Provider,
		Intent: entity.PaymentIntent{
			Amount:   record.Amount,
			Currency: record.Currency,
			Payer: entity.Payer{
				Name:    record.Payer.Name,
				Email:   record.Payer.Email,
				Phone:   record.Payer.Phone,
				Country: record.Payer.Country,
			},
			Frequency:   entity.Frequency(record.Frequency),
			Description: record.Description,
			Metadata:    record.Metadata,
		},
		State:             entity.OrderState(record.Status),
		PaymentStatus:     entity.PaymentStatus(record.PaymentStatus),
		ChannelID:         record.ChannelID,
		ProviderReference: record.ProviderReference,
		RedirectURL:       record.RedirectURL,
		FailureReason:     record.FailureReason,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}
