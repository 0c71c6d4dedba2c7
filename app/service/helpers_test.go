package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/fallback"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/repository"
	"github.com/vibast-solutions/ms-go-payment-sessions/config"
)

const testProviderID = "testgateway"

type fakeProvider struct {
	mu sync.Mutex

	authenticate func(ctx context.Context) (*provider.Token, error)
	register     func(ctx context.Context, bearer, url string) (string, error)
	submit       func(ctx context.Context, bearer string, input *provider.SubmitInput) (*provider.SubmitOutput, error)
	query        func(ctx context.Context, bearer, reference string) (*provider.StatusOutput, error)
	noHostedPage bool

	authCalls   int
	submitCalls int
	queryCalls  int
	bearers     []string
}

func (p *fakeProvider) ID() string {
	return testProviderID
}

func (p *fakeProvider) DefaultChannelID() string {
	return "default-channel"
}

func (p *fakeProvider) Authenticate(ctx context.Context) (*provider.Token, error) {
	p.mu.Lock()
	p.authCalls++
	n := p.authCalls
	p.mu.Unlock()
	if p.authenticate != nil {
		return p.authenticate(ctx)
	}
	return &provider.Token{
		ProviderID: testProviderID,
		Bearer:     fmt.Sprintf("bearer-%d", n),
		AcquiredAt: time.Now().UTC(),
		TTL:        time.Hour,
	}, nil
}

func (p *fakeProvider) RegisterNotificationChannel(ctx context.Context, bearer, url string) (string, error) {
	if p.register != nil {
		return p.register(ctx, bearer, url)
	}
	return "registered-channel", nil
}

func (p *fakeProvider) SubmitOrder(ctx context.Context, bearer string, input *provider.SubmitInput) (*provider.SubmitOutput, error) {
	p.mu.Lock()
	p.submitCalls++
	p.bearers = append(p.bearers, bearer)
	p.mu.Unlock()
	if p.submit != nil {
		return p.submit(ctx, bearer, input)
	}
	return &provider.SubmitOutput{
		RedirectURL:       "https://pay.example.test/checkout/" + input.OrderID,
		ProviderReference: "trk-" + input.OrderID,
	}, nil
}

func (p *fakeProvider) QueryStatus(ctx context.Context, bearer, reference string) (*provider.StatusOutput, error) {
	p.mu.Lock()
	p.queryCalls++
	p.mu.Unlock()
	if p.query != nil {
		return p.query(ctx, bearer, reference)
	}
	return &provider.StatusOutput{Status: entity.PaymentStatusPending}, nil
}

func (p *fakeProvider) HostedForm(input *provider.SubmitInput) provider.HostedForm {
	action := "https://pay.example.test/hosted"
	if p.noHostedPage {
		action = ""
	}
	return provider.HostedForm{
		Action: action,
		Fields: []provider.FormField{
			{Name: "Amount", Value: input.Amount.StringFixed(2)},
			{Name: "Currency", Value: input.Currency},
			{Name: "Reference", Value: input.OrderID},
			{Name: "Email", Value: input.Billing.Email},
		},
	}
}

func (p *fakeProvider) ParseNotification(params map[string]string) (provider.NotificationFields, bool) {
	reference := params["OrderTrackingId"]
	if reference == "" {
		return provider.NotificationFields{}, false
	}
	return provider.NotificationFields{Reference: reference}, true
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []*entity.NotificationRecord
}

func (p *recordingPublisher) PublishNotification(_ context.Context, record *entity.NotificationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, record)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type failingNotificationRepo struct{}

func (failingNotificationRepo) Create(context.Context, *entity.NotificationRecord) error {
	return errors.New("disk full")
}

func (failingNotificationRepo) List(context.Context, int) ([]*entity.NotificationRecord, error) {
	return nil, nil
}

func (failingNotificationRepo) FindLatestByReference(context.Context, string) (*entity.NotificationRecord, error) {
	return nil, nil
}

type testEnv struct {
	svc           *PaymentService
	orders        *repository.OrderRepository
	notifications *repository.NotificationRepository
	provider      *fakeProvider
	publisher     *recordingPublisher
}

func testPaymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		DefaultProvider:     testProviderID,
		CallbackBaseURL:     "https://shop.example.test/payment/complete",
		DefaultDescription:  "Donation",
		CorrelationTimeout:  time.Second,
		AsyncCorrelation:    false,
		ReconcileStaleAfter: 15 * time.Minute,
		JobBatchSize:        10,
	}
}

func newTestEnv(t *testing.T, cfg config.PaymentsConfig, marker notificationMarker) *testEnv {
	t.Helper()

	store := repository.NewFileStore(t.TempDir(), repository.KindOrders, repository.KindNotifications)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}

	fake := &fakeProvider{}
	reg := provider.NewRegistry(fake, provider.NewMockProvider())
	orders := repository.NewOrderRepository(store)
	notifications := repository.NewNotificationRepository(store)
	publisher := &recordingPublisher{}
	if marker == nil {
		marker = repository.NewNotificationMarker(nil, 0)
	}

	svc := NewPaymentService(
		orders,
		notifications,
		marker,
		publisher,
		reg,
		provider.NewTokenCache(reg, nil, nil),
		fallback.NewRenderer(0),
		cfg,
	)
	return &testEnv{svc: svc, orders: orders, notifications: notifications, provider: fake, publisher: publisher}
}

func testIntent(amount string) entity.PaymentIntent {
	return entity.PaymentIntent{
		Amount:   decimal.RequireFromString(amount),
		Currency: "usd",
		Payer: entity.Payer{
			Name:  "Ada Lovelace",
			Email: "ada@example.test",
		},
	}
}

func historyStates(t *testing.T, env *testEnv, orderID string) []entity.OrderState {
	t.Helper()
	items, err := env.orders.History(context.Background(), orderID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	states := make([]entity.OrderState, 0, len(items))
	for _, item := range items {
		states = append(states, item.State)
	}
	return states
}
