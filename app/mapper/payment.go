package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/service"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/types"
)

func SessionToResponse(result *service.SessionResult) *types.CreateSessionResponse {
	if result == nil || result.Order == nil {
		return &types.CreateSessionResponse{Success: false}
	}

	resp := &types.CreateSessionResponse{
		Success:   true,
		Reference: result.Order.ID,
		Provider:  result.Order.Provider,
	}
	if result.UsesFormRedirect() {
		resp.UsesFormRedirect = true
		resp.FormHtml = result.Form.HTML
		return resp
	}
	resp.RedirectUrl = result.RedirectURL
	return resp
}

func VerificationToResponse(result *entity.VerificationResult) *types.VerifyResponse {
	if result == nil {
		return &types.VerifyResponse{Status: entity.VerificationStatusUnknown, Outcome: string(entity.PaymentStatusUnknown)}
	}

	amount, _ := result.Amount.Float64()
	return &types.VerifyResponse{
		Success:         result.Success,
		Reference:       result.Reference,
		Amount:          amount,
		Currency:        result.Currency,
		FormattedAmount: result.FormattedAmount(),
		Status:          result.Status,
		Description:     result.Description,
		Outcome:         string(result.Outcome),
		Mock:            result.Mock,
		Error:           result.Error,
	}
}

func OrderToSnapshot(item *entity.Order) *types.OrderSnapshot {
	if item == nil {
		return nil
	}

	return &types.OrderSnapshot{
		Id:                item.ID,
		Provider:          item.Provider,
		State:             string(item.State),
		PaymentStatus:     string(item.PaymentStatus),
		Amount:            item.Intent.Amount.StringFixed(2),
		Currency:          item.Intent.Currency,
		Frequency:         string(item.Intent.Frequency),
		Description:       item.Intent.Description,
		CustomerName:      item.Intent.Payer.Name,
		CustomerEmail:     item.Intent.Payer.Email,
		Metadata:          cloneMetadata(item.Intent.Metadata),
		ChannelId:         item.ChannelID,
		ProviderReference: derefString(item.ProviderReference),
		RedirectUrl:       derefString(item.RedirectURL),
		FailureReason:     derefString(item.FailureReason),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// OrderHistoryToResponse expects items oldest first, as the repository returns them.
func OrderHistoryToResponse(items []*entity.Order) *types.OrderHistoryResponse {
	resp := &types.OrderHistoryResponse{History: make([]*types.OrderSnapshot, 0, len(items))}
	for _, item := range items {
		resp.History = append(resp.History, OrderToSnapshot(item))
	}
	if n := len(resp.History); n > 0 {
		resp.Current = resp.History[n-1]
		resp.Id = resp.Current.Id
	}
	return resp
}

func NotificationToResponse(item *entity.NotificationRecord) *types.Notification {
	if item == nil {
		return nil
	}

	return &types.Notification{
		Id:                     item.ID,
		Provider:               item.Provider,
		Source:                 string(item.Source),
		Method:                 item.Method,
		RawPayload:             item.RawPayload,
		Params:                 cloneMetadata(item.Params),
		ProviderNotificationId: derefString(item.ProviderNotificationID),
		OrderReference:         derefString(item.OrderReference),
		ReportedStatus:         derefString(item.ReportedStatus),
		ReceivedAt:             item.ReceivedAt.UTC().Format(time.RFC3339),
	}
}

func NotificationsToResponse(items []*entity.NotificationRecord) []*types.Notification {
	result := make([]*types.Notification, 0, len(items))
	for _, item := range items {
		result = append(result, NotificationToResponse(item))
	}
	return result
}

// NotificationToAck builds the acknowledgment body. Identifiers are echoed from the
// delivery's own parameters.
func NotificationToAck(item *entity.NotificationRecord) *types.AckResponse {
	ack := &types.AckResponse{Status: 200}
	if item == nil {
		return ack
	}

	ack.OrderNotificationType = item.Params["OrderNotificationType"]
	ack.OrderTrackingId = item.Params["OrderTrackingId"]
	ack.OrderMerchantReference = item.Params["OrderMerchantReference"]
	ack.NotificationId = derefString(item.ProviderNotificationID)
	return ack
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
