package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/factory"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/fallback"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
	"github.com/vibast-solutions/ms-go-payment-sessions/config"
	"go.opentelemetry.io/otel"
)

const (
	defaultBatchSize         = int32(100)
	defaultListLimit         = 100
	maxListLimit             = 500
	defaultCorrelationWindow = 15 * time.Second
	defaultDescription       = "Payment"
)

var tracer = otel.Tracer("github.com/vibast-solutions/ms-go-payment-sessions/app/service")

type orderRepository interface {
	Append(ctx context.Context, order *entity.Order) error
	FindByReference(ctx context.Context, reference string) (*entity.Order, error)
	History(ctx context.Context, id string) ([]*entity.Order, error)
	ListLatest(ctx context.Context) ([]*entity.Order, error)
}

type notificationRepository interface {
	Create(ctx context.Context, notification *entity.NotificationRecord) error
	List(ctx context.Context, limit int) ([]*entity.NotificationRecord, error)
	FindLatestByReference(ctx context.Context, reference string) (*entity.NotificationRecord, error)
}

type notificationMarker interface {
	MarkFirstDelivery(ctx context.Context, provider, key string) (bool, error)
	Release(ctx context.Context, provider, key string) error
}

type notificationPublisher interface {
	PublishNotification(ctx context.Context, notification *entity.NotificationRecord) error
}

type tokenSource interface {
	GetToken(ctx context.Context, providerID string) (string, error)
	Invalidate(providerID string)
}

type formRenderer interface {
	Render(order *entity.Order, form provider.HostedForm) (*fallback.Document, error)
}

type PaymentService struct {
	orderRepo        orderRepository
	notificationRepo notificationRepository
	marker           notificationMarker
	publisher        notificationPublisher
	providerReg      *provider.Registry
	tokens           tokenSource
	renderer         formRenderer
	paymentsCfg      config.PaymentsConfig
	logger           logrus.FieldLogger

	channels sync.Map
	inflight sync.WaitGroup
	now      func() time.Time
}

func NewPaymentService(
	orderRepo orderRepository,
	notificationRepo notificationRepository,
	marker notificationMarker,
	publisher notificationPublisher,
	providerReg *provider.Registry,
	tokens tokenSource,
	renderer formRenderer,
	paymentsCfg config.PaymentsConfig,
) *PaymentService {
	return &PaymentService{
		orderRepo:        orderRepo,
		notificationRepo: notificationRepo,
		marker:           marker,
		publisher:        publisher,
		providerReg:      providerReg,
		tokens:           tokens,
		renderer:         renderer,
		paymentsCfg:      paymentsCfg,
		logger:           factory.NewModuleLogger("payments-service"),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Providers lists the ids sessions can be opened against.
func (s *PaymentService) Providers() []string {
	return s.providerReg.IDs()
}

// DefaultProvider is the provider used when a session request names none.
func (s *PaymentService) DefaultProvider() string {
	return s.resolveProviderID("")
}

func (s *PaymentService) MockMode() bool {
	return s.paymentsCfg.MockMode
}

func (s *PaymentService) PublicClientKey() string {
	return s.paymentsCfg.PublicClientKey
}

// Wait blocks until background notification correlation has finished.
func (s *PaymentService) Wait() {
	s.inflight.Wait()
}

func (s *PaymentService) GetOrderHistory(ctx context.Context, id string) ([]*entity.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrOrderNotFound
	}
	items, err := s.orderRepo.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrOrderNotFound
	}
	return items, nil
}

func (s *PaymentService) ListNotifications(ctx context.Context, limit int) ([]*entity.NotificationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.notificationRepo.List(ctx, limit)
}

// withBearer runs call with a cached token and, on a 401, once more with a fresh one.
func (s *PaymentService) withBearer(ctx context.Context, providerID string, call func(bearer string) error) error {
	bearer, err := s.tokens.GetToken(ctx, providerID)
	if err != nil {
		return err
	}

	err = call(bearer)
	if !errors.Is(err, provider.ErrUnauthorized) {
		return err
	}

	s.tokens.Invalidate(providerID)
	if bearer, err = s.tokens.GetToken(ctx, providerID); err != nil {
		return err
	}
	return call(bearer)
}

func (s *PaymentService) queryOrderStatus(ctx context.Context, order *entity.Order) (*provider.StatusOutput, error) {
	client, err := s.providerReg.Get(order.Provider)
	if err != nil {
		return nil, err
	}

	reference := order.ID
	if order.ProviderReference != nil && strings.TrimSpace(*order.ProviderReference) != "" {
		reference = strings.TrimSpace(*order.ProviderReference)
	}

	var out *provider.StatusOutput
	err = s.withBearer(ctx, client.ID(), func(bearer string) error {
		var callErr error
		out, callErr = client.QueryStatus(ctx, bearer, reference)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyPaymentStatus appends a snapshot when status moves the order forward.
// Settled outcomes never regress to pending.
func (s *PaymentService) applyPaymentStatus(ctx context.Context, order *entity.Order, status entity.PaymentStatus) (bool, error) {
	if status == entity.PaymentStatusUnknown || status == "" || status == order.PaymentStatus {
		return false, nil
	}
	if order.PaymentStatus.Settled() && !status.Settled() {
		return false, nil
	}

	next := order.Clone()
	next.PaymentStatus = status
	next.UpdatedAt = s.now()
	if err := s.orderRepo.Append(ctx, next); err != nil {
		return false, err
	}
	*order = *next
	return true, nil
}

func (s *PaymentService) batchSize() int {
	if s.paymentsCfg.JobBatchSize <= 0 {
		return int(defaultBatchSize)
	}
	return int(s.paymentsCfg.JobBatchSize)
}

func keepFirstErr(current error, next error) error {
	if current != nil {
		return current
	}
	return next
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
