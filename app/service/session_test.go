package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/fallback"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
)

func TestInitiateSessionRedirectReusesToken(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()

	first, err := env.svc.InitiateSession(ctx, "", testIntent("25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.UsesFormRedirect() {
		t.Fatalf("expected provider redirect, got form")
	}
	if !strings.HasPrefix(first.RedirectURL, "https://pay.example.test/checkout/") {
		t.Fatalf("unexpected redirect url: %s", first.RedirectURL)
	}
	if first.Order.Intent.Currency != "USD" {
		t.Fatalf("expected normalised currency, got %s", first.Order.Intent.Currency)
	}

	if _, err := env.svc.InitiateSession(ctx, testProviderID, testIntent("10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.provider.authCalls != 1 {
		t.Fatalf("expected token reuse, got %d auth calls", env.provider.authCalls)
	}

	want := []entity.OrderState{
		entity.OrderStateCreated,
		entity.OrderStateAuthPending,
		entity.OrderStateOrderSubmitting,
		entity.OrderStateRedirectReady,
	}
	if got := historyStates(t, env, first.Order.ID); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected history %v", got)
	}
}

func TestInitiateSessionAuthFailureStopsBeforeSubmit(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	env.provider.authenticate = func(context.Context) (*provider.Token, error) {
		return nil, provider.ErrCredentialsRejected
	}

	_, err := env.svc.InitiateSession(context.Background(), "", testIntent("25"))
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if !errors.Is(err, provider.ErrCredentialsRejected) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if env.provider.submitCalls != 0 {
		t.Fatalf("submit must not run after auth failure")
	}

	items, err := env.orders.ListLatest(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].State != entity.OrderStateAuthFailed {
		t.Fatalf("expected one auth_failed order, got %+v", items)
	}
	if items[0].FailureReason == nil {
		t.Fatalf("expected failure reason")
	}
}

func TestInitiateSessionNetworkErrorFallsBackToForm(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	env.provider.submit = func(context.Context, string, *provider.SubmitInput) (*provider.SubmitOutput, error) {
		return nil, provider.ErrNetwork
	}

	result, err := env.svc.InitiateSession(context.Background(), "", testIntent("25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.UsesFormRedirect() {
		t.Fatalf("expected fallback form")
	}
	for _, needle := range []string{`name="Amount" value="25.00"`, `name="Currency" value="USD"`, `action="https://pay.example.test/hosted"`} {
		if !strings.Contains(result.Form.HTML, needle) {
			t.Fatalf("form html missing %s", needle)
		}
	}
	if result.Order.State != entity.OrderStateFallbackReady {
		t.Fatalf("expected fallback_ready, got %s", result.Order.State)
	}
}

func TestInitiateSessionWithoutHostedPageFailsOrder(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	env.provider.noHostedPage = true
	env.provider.submit = func(context.Context, string, *provider.SubmitInput) (*provider.SubmitOutput, error) {
		return nil, provider.ErrNetwork
	}

	result, err := env.svc.InitiateSession(context.Background(), "", testIntent("25"))
	if !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("expected ErrOrderFailed, got %v", err)
	}
	if !errors.Is(err, fallback.ErrNoHostedPage) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}

	items, _ := env.orders.ListLatest(context.Background())
	if len(items) != 1 {
		t.Fatalf("expected one order, got %d", len(items))
	}
	want := []entity.OrderState{
		entity.OrderStateCreated,
		entity.OrderStateAuthPending,
		entity.OrderStateOrderSubmitting,
		entity.OrderStateOrderFailed,
	}
	if got := historyStates(t, env, items[0].ID); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected history %v", got)
	}
	if items[0].FailureReason == nil || *items[0].FailureReason != fallback.ErrNoHostedPage.Error() {
		t.Fatalf("unexpected failure reason %v", items[0].FailureReason)
	}
}

func TestInitiateSessionFrequencySpellings(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()

	cases := map[entity.Frequency]entity.Frequency{
		"":          entity.FrequencyOneTime,
		"one-time":  entity.FrequencyOneTime,
		"one_time":  entity.FrequencyOneTime,
		"recurring": entity.FrequencyRecurring,
	}
	for input, want := range cases {
		intent := testIntent("10")
		intent.Frequency = input
		result, err := env.svc.InitiateSession(ctx, "", intent)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", input, err)
		}
		if result.Order.Intent.Frequency != want {
			t.Fatalf("%q: expected %q, got %q", input, want, result.Order.Intent.Frequency)
		}
	}
}

func TestInitiateSessionEmptyRedirectFallsBackToForm(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	env.provider.submit = func(context.Context, string, *provider.SubmitInput) (*provider.SubmitOutput, error) {
		return &provider.SubmitOutput{}, nil
	}

	result, err := env.svc.InitiateSession(context.Background(), "", testIntent("5.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.UsesFormRedirect() || !strings.Contains(result.Form.HTML, `value="5.50"`) {
		t.Fatalf("expected fallback form with formatted amount")
	}
}

func TestInitiateSessionUnauthorizedRefreshesTokenOnce(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	env.provider.submit = func(_ context.Context, bearer string, input *provider.SubmitInput) (*provider.SubmitOutput, error) {
		if bearer == "bearer-1" {
			return nil, provider.ErrUnauthorized
		}
		return &provider.SubmitOutput{RedirectURL: "https://pay.example.test/ok"}, nil
	}

	result, err := env.svc.InitiateSession(context.Background(), "", testIntent("25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RedirectURL != "https://pay.example.test/ok" {
		t.Fatalf("unexpected redirect %s", result.RedirectURL)
	}
	if env.provider.authCalls != 2 {
		t.Fatalf("expected a fresh token after 401, got %d auth calls", env.provider.authCalls)
	}
	if !reflect.DeepEqual(env.provider.bearers, []string{"bearer-1", "bearer-2"}) {
		t.Fatalf("unexpected bearers %v", env.provider.bearers)
	}
}

func TestInitiateSessionValidationMakesNoCalls(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	ctx := context.Background()

	cases := map[string]entity.PaymentIntent{
		"zero amount": testIntent("0"),
		"bad currency": func() entity.PaymentIntent {
			intent := testIntent("10")
			intent.Currency = "dollars"
			return intent
		}(),
		"missing email": func() entity.PaymentIntent {
			intent := testIntent("10")
			intent.Payer.Email = " "
			return intent
		}(),
		"bad frequency": func() entity.PaymentIntent {
			intent := testIntent("10")
			intent.Frequency = "weekly"
			return intent
		}(),
	}
	for name, intent := range cases {
		if _, err := env.svc.InitiateSession(ctx, "", intent); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}

	if env.provider.authCalls != 0 || env.provider.submitCalls != 0 {
		t.Fatalf("validation failures must not reach the provider")
	}
	items, _ := env.orders.ListLatest(ctx)
	if len(items) != 0 {
		t.Fatalf("validation failures must not persist orders")
	}
}

func TestInitiateSessionUnsupportedProvider(t *testing.T) {
	env := newTestEnv(t, testPaymentsConfig(), nil)
	if _, err := env.svc.InitiateSession(context.Background(), "paypal", testIntent("10")); !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestInitiateSessionMockMode(t *testing.T) {
	cfg := testPaymentsConfig()
	cfg.MockMode = true
	env := newTestEnv(t, cfg, nil)

	result, err := env.svc.InitiateSession(context.Background(), "", testIntent("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !provider.IsMockReference(result.Order.ID) {
		t.Fatalf("expected mock reference, got %s", result.Order.ID)
	}
	if !strings.Contains(result.RedirectURL, "mock=true") || !strings.HasPrefix(result.RedirectURL, "https://shop.example.test/payment/complete?") {
		t.Fatalf("unexpected mock redirect %s", result.RedirectURL)
	}
	if env.provider.authCalls != 0 {
		t.Fatalf("mock mode must not touch the real provider")
	}
}

func TestInitiateSessionRegistersChannelOnce(t *testing.T) {
	cfg := testPaymentsConfig()
	cfg.IPNURL = "https://api.example.test/payments/ipn"
	env := newTestEnv(t, cfg, nil)

	registrations := 0
	env.provider.register = func(_ context.Context, _, url string) (string, error) {
		registrations++
		if url != cfg.IPNURL {
			t.Fatalf("unexpected ipn url %s", url)
		}
		return "ipn-123", nil
	}

	var channels []string
	env.provider.submit = func(_ context.Context, _ string, input *provider.SubmitInput) (*provider.SubmitOutput, error) {
		channels = append(channels, input.ChannelID)
		return &provider.SubmitOutput{RedirectURL: "https://pay.example.test/ok"}, nil
	}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.InitiateSession(context.Background(), "", testIntent("10")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if registrations != 1 {
		t.Fatalf("expected one registration, got %d", registrations)
	}
	if !reflect.DeepEqual(channels, []string{"ipn-123", "ipn-123"}) {
		t.Fatalf("unexpected channels %v", channels)
	}
}

func TestSplitName(t *testing.T) {
	first, last := splitName("  Ada   King Lovelace ")
	if first != "Ada" || last != "King Lovelace" {
		t.Fatalf("unexpected split %q %q", first, last)
	}
	if first, last = splitName(""); first != "" || last != "" {
		t.Fatalf("expected empty split")
	}
}
