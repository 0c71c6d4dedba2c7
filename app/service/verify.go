package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/metrics"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
	"go.opentelemetry.io/otel/attribute"
)

type verifyRequest interface {
	GetReference() string
	GetAmount() string
	GetCurrency() string
}

// Verify reports the current outcome for a reference. It never writes to the stores
// and never fails: lookup problems come back as an unknown result with Error set.
func (s *PaymentService) Verify(ctx context.Context, req verifyRequest) *entity.VerificationResult {
	ctx, span := tracer.Start(ctx, "PaymentService.Verify")
	defer span.End()

	result := s.verify(ctx, req)
	span.SetAttributes(attribute.String("payment.outcome", string(result.Outcome)))
	if result.Mock {
		metrics.ObserveVerification("mock")
	} else {
		metrics.ObserveVerification(string(result.Outcome))
	}
	return result
}

func (s *PaymentService) verify(ctx context.Context, req verifyRequest) *entity.VerificationResult {
	reference := strings.TrimSpace(req.GetReference())
	result := &entity.VerificationResult{
		Reference: reference,
		Status:    entity.VerificationStatusUnknown,
		Outcome:   entity.PaymentStatusUnknown,
	}
	if reference == "" {
		result.Error = "reference is required"
		return result
	}

	if provider.IsMockReference(reference) {
		return s.verifyMock(ctx, result, req)
	}

	order, err := s.orderRepo.FindByReference(ctx, reference)
	if err != nil {
		s.logger.WithError(err).WithField("reference", reference).Error("Order lookup for verification failed")
		result.Error = "verification is temporarily unavailable"
		return result
	}
	if order == nil {
		return s.verifyFromNotifications(ctx, result)
	}

	result.Amount = order.Intent.Amount
	result.Currency = order.Intent.Currency
	status := order.PaymentStatus
	switch {
	case status.Settled():
	case order.State.Terminal() && !order.State.Submitted():
		// not submitted, the provider has no record of it
		status = entity.PaymentStatusFailed
	default:
		out, err := s.queryOrderStatus(ctx, order)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("Provider status query for verification failed")
			result.Error = "payment status could not be confirmed with the provider"
		} else {
			status = out.Status
			result.Description = strings.TrimSpace(out.Description)
		}
	}
	if status == "" {
		status = entity.PaymentStatusUnknown
	}

	result.Outcome = status
	result.Success = status == entity.PaymentStatusSucceeded
	result.Status = string(status)
	return result
}

// verifyMock synthesises a success for mock references. The caller's stand-in amount and
// currency win independently; whatever is missing comes from the stored order, if any.
func (s *PaymentService) verifyMock(ctx context.Context, result *entity.VerificationResult, req verifyRequest) *entity.VerificationResult {
	result.Success = true
	result.Mock = true
	result.Status = entity.VerificationStatusMock
	result.Outcome = entity.PaymentStatusSucceeded

	if amount, err := decimal.NewFromString(strings.TrimSpace(req.GetAmount())); err == nil && amount.IsPositive() {
		result.Amount = amount
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.GetCurrency())); len(currency) == 3 {
		result.Currency = currency
	}
	if result.Amount.IsPositive() && result.Currency != "" {
		return result
	}

	order, err := s.orderRepo.FindByReference(ctx, result.Reference)
	if err != nil {
		s.logger.WithError(err).WithField("reference", result.Reference).Warn("Order lookup for mock verification failed")
	}
	if order != nil {
		if !result.Amount.IsPositive() {
			result.Amount = order.Intent.Amount
		}
		if result.Currency == "" {
			result.Currency = order.Intent.Currency
		}
	}
	return result
}

func (s *PaymentService) verifyFromNotifications(ctx context.Context, result *entity.VerificationResult) *entity.VerificationResult {
	notification, err := s.notificationRepo.FindLatestByReference(ctx, result.Reference)
	if err != nil {
		s.logger.WithError(err).WithField("reference", result.Reference).Warn("Notification lookup for verification failed")
	}
	if notification == nil || notification.ReportedStatus == nil {
		result.Error = "no matching reference"
		return result
	}

	status := provider.NormalizeStatus(*notification.ReportedStatus)
	if status == entity.PaymentStatusUnknown {
		result.Error = "no matching reference"
		return result
	}

	result.Outcome = status
	result.Success = status == entity.PaymentStatusSucceeded
	result.Status = string(status)
	result.Description = strings.TrimSpace(*notification.ReportedStatus)
	if amount, err := decimal.NewFromString(firstParam(notification.Params, "amount", "Amount")); err == nil {
		result.Amount = amount
		result.Currency = strings.ToUpper(firstParam(notification.Params, "currency", "Currency"))
	}
	return result
}
