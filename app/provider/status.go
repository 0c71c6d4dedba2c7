package provider

import (
	"strings"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

// NormalizeStatus maps the status words seen across providers onto the four outcomes.
func NormalizeStatus(raw string) entity.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED", "COMPLETE", "SUCCESS", "SUCCESSFUL", "SUCCEEDED", "PAID", "SETTLED", "APPROVED", "00", "1":
		return entity.PaymentStatusSucceeded
	case "PENDING", "PROCESSING", "IN_PROGRESS", "INITIATED", "AWAITING_PAYMENT", "09", "Z0":
		return entity.PaymentStatusPending
	case "FAILED", "FAILURE", "DECLINED", "INVALID", "REVERSED", "CANCELLED", "CANCELED", "REJECTED", "EXPIRED", "2", "3":
		return entity.PaymentStatusFailed
	default:
		return entity.PaymentStatusUnknown
	}
}
