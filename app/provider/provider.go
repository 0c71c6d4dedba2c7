package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

// Token is a bearer credential issued by a provider. It never leaves this package's callers
// except as the opaque bearer string handed back to the same provider.
type Token struct {
	ProviderID string
	Bearer     string
	AcquiredAt time.Time
	TTL        time.Duration
}

func (t *Token) ExpiresAt() time.Time {
	return t.AcquiredAt.Add(t.TTL)
}

type BillingAddress struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	CountryCode string
}

type SubmitInput struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Frequency   entity.Frequency
	CallbackURL string
	ChannelID   string
	Billing     BillingAddress
}

type SubmitOutput struct {
	RedirectURL       string
	ProviderReference string
}

type StatusOutput struct {
	Status      entity.PaymentStatus
	Description string
	Amount      decimal.Decimal
	Currency    string
}

// NotificationFields is what a provider could read out of an IPN payload.
type NotificationFields struct {
	Reference      string
	NotificationID string
	Status         string
}

type FormField struct {
	Name  string
	Value string
}

// HostedForm describes the POST a browser would make to the provider's hosted payment page.
type HostedForm struct {
	Action string
	Fields []FormField
}

type Provider interface {
	ID() string
	Authenticate(ctx context.Context) (*Token, error)
	RegisterNotificationChannel(ctx context.Context, bearer, url string) (string, error)
	SubmitOrder(ctx context.Context, bearer string, input *SubmitInput) (*SubmitOutput, error)
	QueryStatus(ctx context.Context, bearer, reference string) (*StatusOutput, error)
	HostedForm(input *SubmitInput) HostedForm
	// ParseNotification reports false when the payload is not recognisably this provider's.
	ParseNotification(params map[string]string) (NotificationFields, bool)
	DefaultChannelID() string
}
