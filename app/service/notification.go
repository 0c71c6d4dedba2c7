package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/metrics"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
)

const unknownNotificationProvider = "unknown"

var (
	referenceKeys      = []string{"orderId", "order_id", "OrderMerchantReference", "merchant_reference", "OrderTrackingId", "reference", "txnref"}
	statusKeys         = []string{"status", "payment_status", "paymentStatus"}
	notificationIDKeys = []string{"notificationId", "notification_id", "eventId", "event_id"}
)

type receiveNotificationRequest interface {
	GetProvider() string
	GetMethod() string
	GetQuery() map[string]string
	GetRawQuery() string
	GetBody() []byte
	GetContentType() string
}

// ReceiveNotification persists the delivery before anything else. The only error it
// returns is ErrPersistence; correlation with an order is best-effort and never fails the call.
func (s *PaymentService) ReceiveNotification(ctx context.Context, req receiveNotificationRequest) (*entity.NotificationRecord, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.ReceiveNotification")
	defer span.End()

	params, source, raw := notificationParams(req)
	providerID, fields := s.identifyNotification(strings.ToLower(strings.TrimSpace(req.GetProvider())), params)

	record := &entity.NotificationRecord{
		ID:                     uuid.NewString(),
		Provider:               providerID,
		Source:                 source,
		Method:                 strings.ToUpper(strings.TrimSpace(req.GetMethod())),
		RawPayload:             raw,
		Params:                 params,
		ProviderNotificationID: optionalString(fields.NotificationID),
		OrderReference:         optionalString(fields.Reference),
		ReportedStatus:         optionalString(fields.Status),
		ReceivedAt:             s.now(),
	}

	if err := s.notificationRepo.Create(ctx, record); err != nil {
		span.RecordError(err)
		s.logger.WithError(err).WithField("provider", providerID).Error("Failed to persist payment notification")
		metrics.ObserveNotification(providerID, "persist_failed")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	metrics.ObserveNotification(providerID, "persisted")

	s.dispatchCorrelation(ctx, record)
	return record, nil
}

func (s *PaymentService) identifyNotification(requested string, params map[string]string) (string, provider.NotificationFields) {
	var fields provider.NotificationFields
	providerID := requested

	if client, err := s.providerReg.Get(requested); err == nil {
		fields, _ = client.ParseNotification(params)
	} else if client, matched, ok := s.providerReg.MatchNotification(params); ok {
		providerID = client.ID()
		fields = matched
	}
	if providerID == "" {
		providerID = unknownNotificationProvider
	}

	if fields.Reference == "" {
		fields.Reference = firstParam(params, referenceKeys...)
	}
	if fields.Status == "" {
		fields.Status = firstParam(params, statusKeys...)
	}
	if fields.NotificationID == "" {
		fields.NotificationID = firstParam(params, notificationIDKeys...)
	}
	return providerID, fields
}

func (s *PaymentService) dispatchCorrelation(ctx context.Context, record *entity.NotificationRecord) {
	timeout := s.paymentsCfg.CorrelationTimeout
	if timeout <= 0 {
		timeout = defaultCorrelationWindow
	}
	run := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		s.correlateNotification(ctx, record)
	}

	if !s.paymentsCfg.AsyncCorrelation {
		run()
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		run()
	}()
}

func (s *PaymentService) correlateNotification(ctx context.Context, record *entity.NotificationRecord) {
	logger := s.logger.WithFields(logrus.Fields{"notification_id": record.ID, "provider": record.Provider})

	key := notificationDedupKey(record)
	marked := false
	if key != "" && s.marker != nil {
		first, err := s.marker.MarkFirstDelivery(ctx, record.Provider, key)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Duplicate marker unavailable, processing delivery")
		case !first:
			logger.Info("Duplicate notification delivery, correlation skipped")
			metrics.ObserveNotification(record.Provider, "duplicate")
			return
		default:
			marked = true
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishNotification(ctx, record); err != nil {
			logger.WithError(err).Warn("Failed to publish notification event")
		}
	}

	if err := s.applyNotification(ctx, record, logger); err != nil {
		logger.WithError(err).Warn("Notification correlation failed, a redelivery will be processed again")
		metrics.ObserveNotification(record.Provider, "correlation_failed")
		if marked {
			if err := s.marker.Release(context.WithoutCancel(ctx), record.Provider, key); err != nil {
				logger.WithError(err).Warn("Failed to release duplicate marker")
			}
		}
	}
}

// applyNotification moves the referenced order's payment status. It errors only on
// transient failures; a missing reference or unknown order is a normal outcome.
func (s *PaymentService) applyNotification(ctx context.Context, record *entity.NotificationRecord, logger logrus.FieldLogger) error {
	if record.OrderReference == nil {
		logger.Info("Notification carries no order reference")
		metrics.ObserveNotification(record.Provider, "uncorrelated")
		return nil
	}

	order, err := s.orderRepo.FindByReference(ctx, *record.OrderReference)
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		logger.WithField("reference", *record.OrderReference).Info("Notification does not match a known order")
		metrics.ObserveNotification(record.Provider, "uncorrelated")
		return nil
	}

	status := entity.PaymentStatusUnknown
	if record.ReportedStatus != nil {
		status = provider.NormalizeStatus(*record.ReportedStatus)
	}
	if status == entity.PaymentStatusUnknown && order.Provider != provider.MockID {
		out, err := s.queryOrderStatus(ctx, order)
		if err != nil {
			return fmt.Errorf("query provider status for order %s: %w", order.ID, err)
		}
		status = out.Status
	}

	changed, err := s.applyPaymentStatus(ctx, order, status)
	if err != nil {
		return fmt.Errorf("record payment status for order %s: %w", order.ID, err)
	}
	if changed {
		logger.WithFields(logrus.Fields{"order_id": order.ID, "payment_status": status}).Info("Order payment status updated from notification")
	}
	metrics.ObserveNotification(record.Provider, "correlated")
	return nil
}

// notificationDedupKey identifies a delivery for duplicate suppression. Status-less pings
// get no key because the same payload can announce different provider-side changes.
func notificationDedupKey(record *entity.NotificationRecord) string {
	if record.ProviderNotificationID != nil {
		return "id:" + *record.ProviderNotificationID
	}
	if record.ReportedStatus == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(record.Method + "\n" + record.RawPayload))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// notificationParams flattens query values and a JSON or form body into one map.
// Body values win on conflict; nested JSON keys are joined with dots.
func notificationParams(req receiveNotificationRequest) (map[string]string, entity.NotificationSource, string) {
	params := make(map[string]string)
	for k, v := range req.GetQuery() {
		params[k] = v
	}

	body := req.GetBody()
	if len(bytes.TrimSpace(body)) == 0 {
		return params, entity.NotificationSourceQuery, req.GetRawQuery()
	}

	if strings.HasPrefix(strings.ToLower(req.GetContentType()), "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			for k := range values {
				params[k] = values.Get(k)
			}
		}
		return params, entity.NotificationSourceBody, string(body)
	}

	var decoded map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&decoded); err == nil {
		flattenParams("", decoded, params)
	}
	return params, entity.NotificationSourceBody, string(body)
}

func flattenParams(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flattenParams(key, val, out)
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			out[key] = strconv.FormatBool(val)
		case nil:
		default:
			if encoded, err := json.Marshal(val); err == nil {
				out[key] = string(encoded)
			}
		}
	}
}

func firstParam(params map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(params[key]); v != "" {
			return v
		}
	}
	return ""
}
