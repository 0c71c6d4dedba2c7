package provider

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

const (
	MockID              = "mock"
	MockReferencePrefix = "mock_"
)

// MockProvider never touches the network. It redirects straight back to the callback URL.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func IsMockReference(reference string) bool {
	return strings.HasPrefix(strings.TrimSpace(reference), MockReferencePrefix)
}

func (p *MockProvider) ID() string {
	return MockID
}

func (p *MockProvider) DefaultChannelID() string {
	return "mock-channel"
}

func (p *MockProvider) Authenticate(_ context.Context) (*Token, error) {
	return &Token{
		ProviderID: MockID,
		Bearer:     "mock-token",
		AcquiredAt: time.Now().UTC(),
		TTL:        24 * time.Hour,
	}, nil
}

func (p *MockProvider) RegisterNotificationChannel(_ context.Context, _, _ string) (string, error) {
	return p.DefaultChannelID(), nil
}

func (p *MockProvider) SubmitOrder(_ context.Context, _ string, input *SubmitInput) (*SubmitOutput, error) {
	redirect, err := url.Parse(input.CallbackURL)
	if err != nil || input.CallbackURL == "" {
		return nil, ErrNoRedirectURL
	}
	query := redirect.Query()
	query.Set("reference", input.OrderID)
	query.Set("mock", "true")
	redirect.RawQuery = query.Encode()

	return &SubmitOutput{
		RedirectURL:       redirect.String(),
		ProviderReference: input.OrderID,
	}, nil
}

func (p *MockProvider) QueryStatus(_ context.Context, _, _ string) (*StatusOutput, error) {
	return &StatusOutput{Status: entity.PaymentStatusSucceeded, Description: entity.VerificationStatusMock}, nil
}

func (p *MockProvider) HostedForm(input *SubmitInput) HostedForm {
	return HostedForm{
		Action: input.CallbackURL,
		Fields: []FormField{
			{Name: "reference", Value: input.OrderID},
			{Name: "amount", Value: input.Amount.StringFixed(2)},
			{Name: "currency", Value: input.Currency},
		},
	}
}

func (p *MockProvider) ParseNotification(params map[string]string) (NotificationFields, bool) {
	reference := firstNonEmpty(params, "orderId", "reference", "OrderMerchantReference")
	if !IsMockReference(reference) {
		return NotificationFields{}, false
	}
	return NotificationFields{
		Reference:      reference,
		NotificationID: firstNonEmpty(params, "notificationId", "id"),
		Status:         firstNonEmpty(params, "status"),
	}, true
}
