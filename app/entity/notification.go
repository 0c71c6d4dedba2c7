package entity

import "time"

type NotificationSource string

const (
	NotificationSourceQuery NotificationSource = "query"
	NotificationSourceBody  NotificationSource = "body"
)

const NotificationStatusReceived = "received"

// NotificationRecord is the write-once audit entry for one IPN delivery.
type NotificationRecord struct {
	ID       string
	Provider string
	Source   NotificationSource
	Method   string

	// RawPayload holds the body (or encoded query string) exactly as received.
	RawPayload string
	Params     map[string]string

	ProviderNotificationID *string
	OrderReference         *string
	ReportedStatus         *string

	ReceivedAt time.Time
}
