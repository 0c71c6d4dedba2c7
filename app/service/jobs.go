package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
)

// RunReconcileBatch asks providers for the outcome of checkouts that are still pending
// after the stale window and records any settled result.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := s.now()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.orderRepo.ListLatest(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	processed := 0
	for _, order := range items {
		if processed >= s.batchSize() {
			break
		}
		if !reconcilable(order, before) {
			continue
		}
		processed++

		out, err := s.queryOrderStatus(ctx, order)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		changed, err := s.applyPaymentStatus(ctx, order, out.Status)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if changed {
			s.logger.WithFields(logrus.Fields{"order_id": order.ID, "payment_status": order.PaymentStatus}).Info("Order reconciled")
		}
	}

	return firstErr
}

func reconcilable(order *entity.Order, before time.Time) bool {
	if order == nil || order.Provider == provider.MockID {
		return false
	}
	if order.State != entity.OrderStateRedirectReady && order.State != entity.OrderStateFallbackReady {
		return false
	}
	if order.PaymentStatus.Settled() {
		return false
	}
	return order.UpdatedAt.Before(before)
}
