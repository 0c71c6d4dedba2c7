package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/fallback"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/metrics"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionResult is either a provider redirect or a self-submitting fallback form.
type SessionResult struct {
	Order       *entity.Order
	RedirectURL string
	Form        *fallback.Document
}

func (r *SessionResult) UsesFormRedirect() bool {
	return r != nil && r.Form != nil
}

// InitiateSession turns a payment intent into a provider checkout. Validation runs
// before any network call. Submission failures degrade to the fallback form; only
// authentication and rendering failures are returned as errors.
func (s *PaymentService) InitiateSession(ctx context.Context, providerID string, intent entity.PaymentIntent) (*SessionResult, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.InitiateSession")
	defer span.End()

	intent, err := normalizeIntent(intent)
	if err != nil {
		metrics.ObserveSession(providerID, "invalid")
		return nil, err
	}

	providerID = s.resolveProviderID(providerID)
	span.SetAttributes(attribute.String("payment.provider", providerID))
	client, err := s.providerReg.Get(providerID)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			metrics.ObserveSession(providerID, "unsupported")
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	now := s.now()
	order := &entity.Order{
		ID:            newOrderID(client.ID()),
		Provider:      client.ID(),
		Intent:        intent,
		State:         entity.OrderStateCreated,
		PaymentStatus: entity.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orderRepo.Append(ctx, order); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist order: %w", err)
	}
	span.SetAttributes(attribute.String("payment.order_id", order.ID))
	logger := s.logger.WithFields(logrus.Fields{"order_id": order.ID, "provider": client.ID()})

	s.advance(ctx, order, entity.OrderStateAuthPending, nil)
	bearer, err := s.tokens.GetToken(ctx, client.ID())
	if err == nil {
		order.ChannelID, bearer, err = s.resolveChannel(ctx, client, bearer)
	}
	if err != nil {
		logger.WithError(err).Error("Provider authentication failed")
		s.advance(ctx, order, entity.OrderStateAuthFailed, err)
		span.SetStatus(codes.Error, "auth failed")
		metrics.ObserveSession(client.ID(), "auth_failed")
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	s.advance(ctx, order, entity.OrderStateOrderSubmitting, nil)
	input := s.submitInput(order)
	out, err := client.SubmitOrder(ctx, bearer, input)
	if errors.Is(err, provider.ErrUnauthorized) {
		s.tokens.Invalidate(client.ID())
		if bearer, err = s.tokens.GetToken(ctx, client.ID()); err == nil {
			out, err = client.SubmitOrder(ctx, bearer, input)
		}
	}
	if err == nil && strings.TrimSpace(out.RedirectURL) != "" {
		redirectURL := strings.TrimSpace(out.RedirectURL)
		order.RedirectURL = &redirectURL
		order.ProviderReference = optionalString(out.ProviderReference)
		s.advance(ctx, order, entity.OrderStateRedirectReady, nil)
		metrics.ObserveSession(client.ID(), "redirect")
		return &SessionResult{Order: order.Clone(), RedirectURL: redirectURL}, nil
	}
	if err == nil {
		err = provider.ErrNoRedirectURL
	}

	logger.WithError(err).Warn("Order submission did not yield a redirect, using hosted form")
	span.AddEvent("fallback", trace.WithAttributes(attribute.String("reason", err.Error())))
	doc, renderErr := s.renderer.Render(order, client.HostedForm(input))
	if renderErr != nil {
		logger.WithError(renderErr).Error("Fallback form could not be rendered")
		s.advance(ctx, order, entity.OrderStateOrderFailed, renderErr)
		span.SetStatus(codes.Error, "order failed")
		metrics.ObserveSession(client.ID(), "order_failed")
		return nil, fmt.Errorf("%w: %w", ErrOrderFailed, renderErr)
	}

	s.advance(ctx, order, entity.OrderStateFallbackReady, err)
	metrics.ObserveSession(client.ID(), "fallback")
	return &SessionResult{Order: order.Clone(), Form: doc}, nil
}

// advance records a lifecycle transition. A failed append is logged; the checkout proceeds.
func (s *PaymentService) advance(ctx context.Context, order *entity.Order, next entity.OrderState, cause error) {
	if !order.State.CanTransitionTo(next) {
		s.logger.WithFields(logrus.Fields{"order_id": order.ID, "from": order.State, "to": next}).Error("Rejected invalid order transition")
		return
	}

	order.State = next
	order.UpdatedAt = s.now()
	if cause != nil {
		reason := cause.Error()
		order.FailureReason = &reason
	}
	if err := s.orderRepo.Append(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to persist order transition")
	}
}

// resolveChannel returns the IPN channel id for client, registering the IPN URL once per process.
// A 401 gets one retry with a fresh token; any other failure falls back to the provider default.
func (s *PaymentService) resolveChannel(ctx context.Context, client provider.Provider, bearer string) (string, string, error) {
	ipnURL := strings.TrimSpace(s.paymentsCfg.IPNURL)
	if ipnURL == "" {
		return client.DefaultChannelID(), bearer, nil
	}

	key := client.ID() + "|" + ipnURL
	if id, ok := s.channels.Load(key); ok {
		return id.(string), bearer, nil
	}

	id, err := client.RegisterNotificationChannel(ctx, bearer, ipnURL)
	if errors.Is(err, provider.ErrUnauthorized) {
		s.tokens.Invalidate(client.ID())
		if bearer, err = s.tokens.GetToken(ctx, client.ID()); err != nil {
			return "", "", err
		}
		id, err = client.RegisterNotificationChannel(ctx, bearer, ipnURL)
	}
	if err != nil || strings.TrimSpace(id) == "" {
		s.logger.WithError(err).WithField("provider", client.ID()).Warn("Notification channel registration failed, using default channel")
		return client.DefaultChannelID(), bearer, nil
	}

	s.channels.Store(key, id)
	return id, bearer, nil
}

func (s *PaymentService) resolveProviderID(requested string) string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested != "" {
		return requested
	}
	if s.paymentsCfg.MockMode {
		return provider.MockID
	}
	return strings.ToLower(strings.TrimSpace(s.paymentsCfg.DefaultProvider))
}

func (s *PaymentService) submitInput(order *entity.Order) *provider.SubmitInput {
	firstName, lastName := splitName(order.Intent.Payer.Name)

	description := order.Intent.Description
	if description == "" {
		description = strings.TrimSpace(s.paymentsCfg.DefaultDescription)
	}
	if description == "" {
		description = defaultDescription
	}

	return &provider.SubmitInput{
		OrderID:     order.ID,
		Amount:      order.Intent.Amount,
		Currency:    order.Intent.Currency,
		Description: description,
		Frequency:   order.Intent.Frequency,
		CallbackURL: s.callbackURL(order.ID),
		ChannelID:   order.ChannelID,
		Billing: provider.BillingAddress{
			FirstName:   firstName,
			LastName:    lastName,
			Email:       order.Intent.Payer.Email,
			Phone:       order.Intent.Payer.Phone,
			CountryCode: order.Intent.Payer.Country,
		},
	}
}

func (s *PaymentService) callbackURL(orderID string) string {
	base := strings.TrimSpace(s.paymentsCfg.CallbackBaseURL)
	parsed, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	query := parsed.Query()
	query.Set("reference", orderID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func normalizeIntent(intent entity.PaymentIntent) (entity.PaymentIntent, error) {
	if !intent.Amount.IsPositive() {
		return intent, fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}

	intent.Currency = strings.ToUpper(strings.TrimSpace(intent.Currency))
	if len(intent.Currency) != 3 {
		return intent, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}

	intent.Payer.Email = strings.TrimSpace(intent.Payer.Email)
	if intent.Payer.Email == "" {
		return intent, fmt.Errorf("%w: payer email is required", ErrValidation)
	}
	intent.Payer.Name = strings.TrimSpace(intent.Payer.Name)
	intent.Payer.Phone = strings.TrimSpace(intent.Payer.Phone)
	intent.Payer.Country = strings.ToUpper(strings.TrimSpace(intent.Payer.Country))
	intent.Description = strings.TrimSpace(intent.Description)

	frequency, ok := entity.ParseFrequency(string(intent.Frequency))
	if !ok {
		return intent, fmt.Errorf("%w: frequency must be one-time or recurring", ErrValidation)
	}
	intent.Frequency = frequency

	metadata := make(map[string]string, len(intent.Metadata))
	for k, v := range intent.Metadata {
		metadata[k] = v
	}
	intent.Metadata = metadata

	return intent, nil
}

func newOrderID(providerID string) string {
	id := uuid.NewString()
	if providerID == provider.MockID {
		return provider.MockReferencePrefix + id
	}
	return id
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
