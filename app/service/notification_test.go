package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/fallback"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/repository"
)

type notificationRequest struct {
	provider    string
	method      string
	query       map[string]string
	rawQuery    string
	body        []byte
	contentType string
}

func (r *notificationRequest) GetProvider() string         { return r.provider }
func (r *notificationRequest) GetMethod() string           { return r.method }
func (r *notificationRequest) GetQuery() map[string]string { return r.query }
func (r *notificationRequest) GetRawQuery() string         { return r.rawQuery }
func (r *notificationRequest) GetBody() []byte             { return r.body }
func (r *notificationRequest) GetContentType() string      { return r.contentType }

func jsonNotification(body string) *notificationRequest {
	return &notificationRequest{method: "POST", body: []byte(body), contentType: "application/json"}
}

func TestReceiveNotificationPersistsEveryDuplicate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, testPaymentsConfig(), repository.NewNotificationMarker(client, time.Hour))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.svc.ReceiveNotification(ctx, jsonNotification(`{"orderId":"X","status":"COMPLETED"}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := env.notifications.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected both deliveries persisted, got %d", len(items))
	}
	if items[0].RawPayload != `{"orderId":"X","status":"COMPLETED"}` {
		t.Fatalf("raw payload not preserved: %s", items[0].RawPayload)
	}
	if items[0].Provider != unknownNotificationProvider {
		t.Fatalf("expected unknown provider, got %s", items[0].Provider)
	}
	if env.publisher.count() != 1 {
		t.Fatalf("expected duplicate to be published once, got %d", env.publisher.count())
	}
}

func TestReceiveNotificationRedeliveryRetriesFailedCorrelation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, testPaymentsConfig(), repository.NewNotificationMarker(client, time.Hour))
	ctx := context.Background()

	result, err := env.svc.InitiateSession(ctx, "", testIntent("25"))
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	queries := 0
	env.provider.query = func(context.Context, string, string) (*provider.StatusOutput, error) {
		queries++
		if queries == 1 {
			return nil, provider.ErrNetwork
		}
		return &provider.StatusOutput{Status: entity.PaymentStatusSucceeded}, nil
	}

	body := `{"orderId":"` + result.Order.ID + `","notificationId":"evt-7"}`
	if _, err := env.svc.ReceiveNotification(ctx, jsonNotification(body)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	order, _ := env.orders.FindByReference(ctx, result.Order.ID)
	if order.PaymentStatus != entity.PaymentStatusPending {
		t.Fatalf("expected pending after failed query, got %s", order.PaymentStatus)
	}

	if _, err := env.svc.ReceiveNotification(ctx, jsonNotification(body)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	order, _ = env.orders.FindByReference(ctx, result.Order.ID)
	if order.PaymentStatus != entity.PaymentStatusSucceeded {
		t.Fatalf("expected redelivery to correlate, got %s", order.PaymentStatus)
	}
	if queries != 2 {
		t.Fatalf("expected two provider queries, got %d", queries)
	}

	if _, err := env.svc.ReceiveNotification(ctx, jsonNotification(body)); err != nil {
		t.Fatalf("third delivery: %v", err)
	}
	if queries != 2 {
		t.Fatalf("a successfully correlated delivery must stay deduplicated, got %d queries", queries)
	}
}

func TestReceiveNotificationCorrelatesOrder(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()

	result, err := env.svc.InitiateSession(ctx, "", testIntent("25"))
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	record, err := env.svc.ReceiveNotification(ctx, &notificationRequest{
		method:   "GET",
		query:    map[string]string{"orderId": result.Order.ID, "status": "COMPLETED"},
		rawQuery: "orderId=" + result.Order.ID + "&status=COMPLETED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Source != entity.NotificationSourceQuery || record.OrderReference == nil || *record.OrderReference != result.Order.ID {
		t.Fatalf("unexpected record %+v", record)
	}

	order, err := env.orders.FindByReference(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if order.PaymentStatus != entity.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", order.PaymentStatus)
	}
	if order.State != entity.OrderStateRedirectReady {
		t.Fatalf("lifecycle state must not change, got %s", order.State)
	}
}

func TestReceiveNotificationStatusLessPingQueriesProvider(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()

	result, err := env.svc.InitiateSession(ctx, "", testIntent("25"))
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	env.provider.query = func(_ context.Context, _, reference string) (*provider.StatusOutput, error) {
		if reference != "trk-"+result.Order.ID {
			t.Fatalf("expected provider reference, got %s", reference)
		}
		return &provider.StatusOutput{Status: entity.PaymentStatusFailed}, nil
	}

	_, err = env.svc.ReceiveNotification(ctx, &notificationRequest{
		provider:    testProviderID,
		method:      "POST",
		body:        []byte("OrderTrackingId=trk-" + result.Order.ID + "&OrderNotificationType=IPNCHANGE"),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, _ := env.orders.FindByReference(ctx, result.Order.ID)
	if order.PaymentStatus != entity.PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", order.PaymentStatus)
	}
}

func TestReceiveNotificationUnknownOrderIsStillAcknowledged(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)

	record, err := env.svc.ReceiveNotification(context.Background(), jsonNotification(`{"data":{"reference":"nope"},"status":"PAID"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Params["data.reference"] != "nope" {
		t.Fatalf("expected flattened params, got %v", record.Params)
	}
}

func TestReceiveNotificationPersistenceFailure(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	env.svc = NewPaymentService(
		env.orders,
		failingNotificationRepo{},
		nil,
		env.publisher,
		provider.NewRegistry(env.provider),
		provider.NewTokenCache(provider.NewRegistry(env.provider), nil, nil),
		fallback.NewRenderer(0),
		testPaymentsConfig(),
	)

	_, err := env.svc.ReceiveNotification(context.Background(), jsonNotification(`{"orderId":"X"}`))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if env.publisher.count() != 0 {
		t.Fatalf("nothing may be published when persistence fails")
	}
}

func TestReceiveNotificationAsyncCorrelationDrainsOnWait(t *testing.T) {
	cfg := testPaymentsConfig()
	cfg.AsyncCorrelation = true
	env := newTestEnv(t, cfg, nil)

	if _, err := env.svc.ReceiveNotification(context.Background(), jsonNotification(`{"orderId":"X","status":"FAILED"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.svc.Wait()
	if env.publisher.count() != 1 {
		t.Fatalf("expected correlation to finish before Wait returns")
	}
}

func TestNotificationDedupKey(t *testing.T) {
	status := "COMPLETED"
	id := "evt-1"

	if key := notificationDedupKey(&entity.NotificationRecord{Method: "POST", RawPayload: "a"}); key != "" {
		t.Fatalf("status-less ping must not be deduplicated, got %s", key)
	}
	if key := notificationDedupKey(&entity.NotificationRecord{ProviderNotificationID: &id}); key != "id:evt-1" {
		t.Fatalf("unexpected key %s", key)
	}
	a := notificationDedupKey(&entity.NotificationRecord{Method: "POST", RawPayload: "a", ReportedStatus: &status})
	b := notificationDedupKey(&entity.NotificationRecord{Method: "GET", RawPayload: "a", ReportedStatus: &status})
	if a == "" || a == b {
		t.Fatalf("expected distinct hash keys, got %s and %s", a, b)
	}
}
