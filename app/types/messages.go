package types

import "github.com/shopspring/decimal"

type Customer struct {
	Name    string `json:"name,omitempty" validate:"max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty" validate:"max=32"`
	Country string `json:"country,omitempty" validate:"omitempty,len=2"`
}

func (c *Customer) GetName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

func (c *Customer) GetEmail() string {
	if c == nil {
		return ""
	}
	return c.Email
}

func (c *Customer) GetPhone() string {
	if c == nil {
		return ""
	}
	return c.Phone
}

func (c *Customer) GetCountry() string {
	if c == nil {
		return ""
	}
	return c.Country
}

type CreateSessionRequest struct {
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency" validate:"required,len=3,alpha"`
	Customer    *Customer              `json:"customer" validate:"required"`
	Frequency   string                 `json:"frequency,omitempty" validate:"omitempty,oneof=one-time recurring"`
	Description string                 `json:"description,omitempty" validate:"max=100"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Provider    string                 `json:"provider,omitempty" validate:"omitempty,alphanum"`
}

func (r *CreateSessionRequest) GetAmount() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return r.Amount
}

func (r *CreateSessionRequest) GetCurrency() string {
	if r == nil {
		return ""
	}
	return r.Currency
}

func (r *CreateSessionRequest) GetCustomer() *Customer {
	if r == nil {
		return nil
	}
	return r.Customer
}

func (r *CreateSessionRequest) GetFrequency() string {
	if r == nil {
		return ""
	}
	return r.Frequency
}

func (r *CreateSessionRequest) GetDescription() string {
	if r == nil {
		return ""
	}
	return r.Description
}

func (r *CreateSessionRequest) GetMetadata() map[string]interface{} {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func (r *CreateSessionRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

type CreateSessionResponse struct {
	Success          bool   `json:"success"`
	Reference        string `json:"reference,omitempty"`
	Provider         string `json:"provider,omitempty"`
	RedirectUrl      string `json:"redirectUrl,omitempty"`
	UsesFormRedirect bool   `json:"usesFormRedirect,omitempty"`
	FormHtml         string `json:"formHtml,omitempty"`
	Error            string `json:"error,omitempty"`
}

type VerifyRequest struct {
	Reference string `json:"reference" validate:"required,max=128"`
	Amount    string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Currency  string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

func (r *VerifyRequest) GetReference() string {
	if r == nil {
		return ""
	}
	return r.Reference
}

func (r *VerifyRequest) GetAmount() string {
	if r == nil {
		return ""
	}
	return r.Amount
}

func (r *VerifyRequest) GetCurrency() string {
	if r == nil {
		return ""
	}
	return r.Currency
}

type VerifyResponse struct {
	Success         bool    `json:"success"`
	Reference       string  `json:"reference"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency,omitempty"`
	FormattedAmount string  `json:"formattedAmount,omitempty"`
	Status          string  `json:"status"`
	Description     string  `json:"description,omitempty"`
	Outcome         string  `json:"outcome"`
	Mock            bool    `json:"mock,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type ReceiveNotificationRequest struct {
	Provider    string
	Method      string
	Query       map[string]string
	RawQuery    string
	Body        []byte
	ContentType string
}

func (r *ReceiveNotificationRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *ReceiveNotificationRequest) GetMethod() string {
	if r == nil {
		return ""
	}
	return r.Method
}

func (r *ReceiveNotificationRequest) GetQuery() map[string]string {
	if r == nil {
		return nil
	}
	return r.Query
}

func (r *ReceiveNotificationRequest) GetRawQuery() string {
	if r == nil {
		return ""
	}
	return r.RawQuery
}

func (r *ReceiveNotificationRequest) GetBody() []byte {
	if r == nil {
		return nil
	}
	return r.Body
}

func (r *ReceiveNotificationRequest) GetContentType() string {
	if r == nil {
		return ""
	}
	return r.ContentType
}

// AckResponse echoes the identifiers card-gateway style providers expect back from an IPN.
type AckResponse struct {
	OrderNotificationType  string `json:"orderNotificationType,omitempty"`
	OrderTrackingId        string `json:"orderTrackingId,omitempty"`
	OrderMerchantReference string `json:"orderMerchantReference,omitempty"`
	NotificationId         string `json:"notificationId,omitempty"`
	Status                 int32  `json:"status"`
}

type GetOrderRequest struct {
	Id string `json:"id" validate:"required,max=128"`
}

func (r *GetOrderRequest) GetId() string {
	if r == nil {
		return ""
	}
	return r.Id
}

type OrderSnapshot struct {
	Id                string            `json:"id"`
	Provider          string            `json:"provider"`
	State             string            `json:"state"`
	PaymentStatus     string            `json:"paymentStatus"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	Frequency         string            `json:"frequency"`
	Description       string            `json:"description,omitempty"`
	CustomerName      string            `json:"customerName,omitempty"`
	CustomerEmail     string            `json:"customerEmail"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ChannelId         string            `json:"channelId,omitempty"`
	ProviderReference string            `json:"providerReference,omitempty"`
	RedirectUrl       string            `json:"redirectUrl,omitempty"`
	FailureReason     string            `json:"failureReason,omitempty"`
	CreatedAt         string            `json:"createdAt"`
	UpdatedAt         string            `json:"updatedAt"`
}

type OrderHistoryResponse struct {
	Id      string           `json:"id"`
	Current *OrderSnapshot   `json:"current"`
	History []*OrderSnapshot `json:"history"`
}

type ListNotificationsRequest struct {
	Limit int32 `json:"limit" validate:"gte=0,lte=500"`
}

func (r *ListNotificationsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

type Notification struct {
	Id                     string            `json:"id"`
	Provider               string            `json:"provider"`
	Source                 string            `json:"source"`
	Method                 string            `json:"method"`
	RawPayload             string            `json:"rawPayload"`
	Params                 map[string]string `json:"params,omitempty"`
	ProviderNotificationId string            `json:"providerNotificationId,omitempty"`
	OrderReference         string            `json:"orderReference,omitempty"`
	ReportedStatus         string            `json:"reportedStatus,omitempty"`
	ReceivedAt             string            `json:"receivedAt"`
}

type ListNotificationsResponse struct {
	Notifications []*Notification `json:"notifications"`
}

func (r *ListNotificationsResponse) GetNotifications() []*Notification {
	if r == nil {
		return nil
	}
	return r.Notifications
}

type ConfigResponse struct {
	Providers       []string `json:"providers"`
	DefaultProvider string   `json:"defaultProvider,omitempty"`
	PublicClientKey string   `json:"publicClientKey,omitempty"`
	MockMode        bool     `json:"mockMode"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthRequest struct{}
