package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle state of a checkout attempt.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStateAuthPending     OrderState = "auth_pending"
	OrderStateAuthFailed      OrderState = "auth_failed"
	OrderStateOrderSubmitting OrderState = "order_submitting"
	OrderStateOrderFailed     OrderState = "order_failed"
	OrderStateRedirectReady   OrderState = "redirect_ready"
	OrderStateFallbackReady   OrderState = "fallback_ready"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateAuthFailed, OrderStateOrderFailed, OrderStateRedirectReady, OrderStateFallbackReady:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the lifecycle graph. Terminal states accept nothing.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case OrderStateCreated:
		return next == OrderStateAuthPending
	case OrderStateAuthPending:
		return next == OrderStateAuthFailed || next == OrderStateOrderSubmitting
	case OrderStateOrderSubmitting:
		return next == OrderStateOrderFailed || next == OrderStateRedirectReady || next == OrderStateFallbackReady
	default:
		return false
	}
}

// Submitted reports whether the order reached the provider, so the provider can know its outcome.
func (s OrderState) Submitted() bool {
	return s == OrderStateRedirectReady || s == OrderStateFallbackReady
}

// PaymentStatus is the normalised money outcome reported by a provider.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusUnknown   PaymentStatus = "unknown"
)

func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

type Frequency string

const (
	FrequencyOneTime   Frequency = "one-time"
	FrequencyRecurring Frequency = "recurring"
)

// ParseFrequency maps accepted spellings onto the canonical values. An empty
// input is one-time.
func ParseFrequency(raw string) (Frequency, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "one-time", "one_time", "onetime":
		return FrequencyOneTime, true
	case "recurring":
		return FrequencyRecurring, true
	default:
		return Frequency(raw), false
	}
}

type Payer struct {
	Name    string
	Email   string
	Phone   string
	Country string
}

type PaymentIntent struct {
	Amount      decimal.Decimal
	Currency    string
	Payer       Payer
	Frequency   Frequency
	Description string
	Metadata    map[string]string
}

type Order struct {
	ID       string
	Provider string
	Intent   PaymentIntent

	State         OrderState
	PaymentStatus PaymentStatus

	ChannelID         string
	ProviderReference *string
	RedirectURL       *string
	FailureReason     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy that shares no mutable state with o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Intent.Metadata != nil {
		c.Intent.Metadata = make(map[string]string, len(o.Intent.Metadata))
		for k, v := range o.Intent.Metadata {
			c.Intent.Metadata[k] = v
		}
	}
	c.ProviderReference = cloneString(o.ProviderReference)
	c.RedirectURL = cloneString(o.RedirectURL)
	c.FailureReason = cloneString(o.FailureReason)
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
