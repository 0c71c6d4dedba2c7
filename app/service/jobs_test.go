package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
)

func seedOrder(t *testing.T, env *testEnv, id, providerID string, state entity.OrderState, status entity.PaymentStatus, updatedAt time.Time) {
	t.Helper()
	err := env.orders.Append(context.Background(), &entity.Order{
		ID:       id,
		Provider: providerID,
		Intent: entity.PaymentIntent{
			Amount:    decimal.NewFromInt(10),
			Currency:  "USD",
			Payer:     entity.Payer{Email: "ada@example.test"},
			Frequency: entity.FrequencyOneTime,
		},
		State:         state,
		PaymentStatus: status,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRunReconcileBatch(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()
	stale := time.Now().UTC().Add(-time.Hour)

	seedOrder(t, env, "stale", testProviderID, entity.OrderStateRedirectReady, entity.PaymentStatusPending, stale)
	seedOrder(t, env, "fresh", testProviderID, entity.OrderStateFallbackReady, entity.PaymentStatusPending, time.Now().UTC())
	seedOrder(t, env, "settled", testProviderID, entity.OrderStateRedirectReady, entity.PaymentStatusSucceeded, stale)
	seedOrder(t, env, "failed-auth", testProviderID, entity.OrderStateAuthFailed, entity.PaymentStatusPending, stale)
	seedOrder(t, env, "mock_1", provider.MockID, entity.OrderStateRedirectReady, entity.PaymentStatusPending, stale)

	var queried []string
	env.provider.query = func(_ context.Context, _, reference string) (*provider.StatusOutput, error) {
		queried = append(queried, reference)
		return &provider.StatusOutput{Status: entity.PaymentStatusSucceeded}, nil
	}

	if err := env.svc.RunReconcileBatch(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queried) != 1 || queried[0] != "stale" {
		t.Fatalf("unexpected queried references %v", queried)
	}

	order, _ := env.orders.FindByReference(ctx, "stale")
	if order.PaymentStatus != entity.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", order.PaymentStatus)
	}
	fresh, _ := env.orders.FindByReference(ctx, "fresh")
	if fresh.PaymentStatus != entity.PaymentStatusPending {
		t.Fatalf("fresh order must be left alone")
	}
}

func TestRunReconcileBatchKeepsGoingOnError(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()
	stale := time.Now().UTC().Add(-time.Hour)

	seedOrder(t, env, "a", testProviderID, entity.OrderStateRedirectReady, entity.PaymentStatusPending, stale)
	seedOrder(t, env, "b", testProviderID, entity.OrderStateRedirectReady, entity.PaymentStatusPending, stale)

	env.provider.query = func(_ context.Context, _, reference string) (*provider.StatusOutput, error) {
		if reference == "a" {
			return nil, provider.ErrNetwork
		}
		return &provider.StatusOutput{Status: entity.PaymentStatusFailed}, nil
	}

	if err := env.svc.RunReconcileBatch(ctx); err == nil {
		t.Fatalf("expected first error to be returned")
	}
	order, _ := env.orders.FindByReference(ctx, "b")
	if order.PaymentStatus != entity.PaymentStatusFailed {
		t.Fatalf("expected b to be reconciled, got %s", order.PaymentStatus)
	}
}
