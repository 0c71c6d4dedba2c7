package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

const (
	PaymentSwitchID = "paymentswitch"

	paymentSwitchTokenPath    = "/passport/oauth/token"
	paymentSwitchWebhookPath  = "/paymentgateway/api/v1/webhooks"
	paymentSwitchPayBillPath  = "/paymentgateway/api/v1/paybill"
	paymentSwitchStatusPath   = "/paymentgateway/api/v1/transactions/"
	paymentSwitchMinorUnitExp = 2
)

type PaymentSwitchConfig struct {
	BaseURL               string
	ClientID              string
	ClientSecret          string
	MerchantCode          string
	PayItemID             string
	HostedPageURL         string
	DefaultNotificationID string
	TokenTTL              time.Duration
	HTTPTimeout           time.Duration
}

// PaymentSwitchProvider uses OAuth client credentials and amounts in minor units.
type PaymentSwitchProvider struct {
	cfg    PaymentSwitchConfig
	client *http.Client
	now    func() time.Time
}

func NewPaymentSwitchProvider(cfg PaymentSwitchConfig) *PaymentSwitchProvider {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	return &PaymentSwitchProvider{
		cfg:    cfg,
		client: newHTTPClient(cfg.HTTPTimeout),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *PaymentSwitchProvider) ID() string {
	return PaymentSwitchID
}

func (p *PaymentSwitchProvider) DefaultChannelID() string {
	return strings.TrimSpace(p.cfg.DefaultNotificationID)
}

func (p *PaymentSwitchProvider) Authenticate(ctx context.Context) (*Token, error) {
	if strings.TrimSpace(p.cfg.ClientID) == "" || strings.TrimSpace(p.cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: client credentials are not configured", ErrCredentialsRejected)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "profile")
	req := &apiRequest{
		provider:    p.ID(),
		method:      http.MethodPost,
		baseURL:     p.cfg.BaseURL,
		path:        paymentSwitchTokenPath,
		basicUser:   p.cfg.ClientID,
		basicPass:   p.cfg.ClientSecret,
		contentType: "application/x-www-form-urlencoded",
		body:        []byte(form.Encode()),
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return nil, credentialFailure(err)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := decode(p.ID(), paymentSwitchTokenPath, body, &payload); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsRejected, payload.Error)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return nil, fmt.Errorf("%w: access_token missing", ErrInvalidResponse)
	}

	ttl := p.cfg.TokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}

	return &Token{
		ProviderID: p.ID(),
		Bearer:     payload.AccessToken,
		AcquiredAt: p.now(),
		TTL:        ttl,
	}, nil
}

func (p *PaymentSwitchProvider) RegisterNotificationChannel(ctx context.Context, bearer, notificationURL string) (string, error) {
	req, err := jsonRequest(p.ID(), http.MethodPost, p.cfg.BaseURL, paymentSwitchWebhookPath, bearer, map[string]interface{}{
		"merchantCode": p.cfg.MerchantCode,
		"url":          notificationURL,
		"events":       []string{"TRANSACTION.COMPLETED", "TRANSACTION.FAILED"},
	})
	if err != nil {
		return "", err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return "", err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := decode(p.ID(), paymentSwitchWebhookPath, body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.ID) == "" {
		return "", fmt.Errorf("%w: webhook id missing", ErrInvalidResponse)
	}
	return strings.TrimSpace(payload.ID), nil
}

func (p *PaymentSwitchProvider) SubmitOrder(ctx context.Context, bearer string, input *SubmitInput) (*SubmitOutput, error) {
	req, err := jsonRequest(p.ID(), http.MethodPost, p.cfg.BaseURL, paymentSwitchPayBillPath, bearer, map[string]interface{}{
		"merchantCode":          p.cfg.MerchantCode,
		"payableCode":           p.cfg.PayItemID,
		"amount":                toMinorUnits(input.Amount),
		"currencyCode":          input.Currency,
		"transactionReference":  input.OrderID,
		"redirectUrl":           input.CallbackURL,
		"customerId":            input.Billing.Email,
		"customerEmail":         input.Billing.Email,
		"customerMobileNo":      input.Billing.Phone,
		"customerName":          strings.TrimSpace(input.Billing.FirstName + " " + input.Billing.LastName),
		"description":           input.Description,
		"notificationChannelId": input.ChannelID,
	})
	if err != nil {
		return nil, err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Reference  string `json:"reference"`
		PaymentURL string `json:"paymentUrl"`
	}
	if err := decode(p.ID(), paymentSwitchPayBillPath, body, &payload); err != nil {
		return nil, err
	}

	paymentURL := strings.TrimSpace(payload.PaymentURL)
	if paymentURL == "" {
		return nil, ErrNoRedirectURL
	}

	return &SubmitOutput{
		RedirectURL:       paymentURL,
		ProviderReference: strings.TrimSpace(payload.Reference),
	}, nil
}

func (p *PaymentSwitchProvider) QueryStatus(ctx context.Context, bearer, reference string) (*StatusOutput, error) {
	path := paymentSwitchStatusPath + url.PathEscape(reference) + "?merchantCode=" + url.QueryEscape(p.cfg.MerchantCode)
	req, err := jsonRequest(p.ID(), http.MethodGet, p.cfg.BaseURL, path, bearer, nil)
	if err != nil {
		return nil, err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ResponseCode        string `json:"responseCode"`
		ResponseDescription string `json:"responseDescription"`
		Amount              int64  `json:"amount"`
		CurrencyCode        string `json:"currencyCode"`
	}
	if err := decode(p.ID(), paymentSwitchStatusPath, body, &payload); err != nil {
		return nil, err
	}

	return &StatusOutput{
		Status:      paymentSwitchStatus(payload.ResponseCode),
		Description: payload.ResponseDescription,
		Amount:      fromMinorUnits(payload.Amount),
		Currency:    strings.ToUpper(payload.CurrencyCode),
	}, nil
}

func (p *PaymentSwitchProvider) HostedForm(input *SubmitInput) HostedForm {
	return HostedForm{
		Action: strings.TrimSpace(p.cfg.HostedPageURL),
		Fields: []FormField{
			{Name: "txn_ref", Value: input.OrderID},
			{Name: "amount", Value: fmt.Sprintf("%d", toMinorUnits(input.Amount))},
			{Name: "currency", Value: input.Currency},
			{Name: "pay_item_name", Value: input.Description},
			{Name: "cust_name", Value: strings.TrimSpace(input.Billing.FirstName + " " + input.Billing.LastName)},
			{Name: "cust_email", Value: input.Billing.Email},
			{Name: "cust_mobile_no", Value: input.Billing.Phone},
		},
	}
}

func (p *PaymentSwitchProvider) ParseNotification(params map[string]string) (NotificationFields, bool) {
	event := firstNonEmpty(params, "event")
	reference := firstNonEmpty(params, "txnref", "txn_ref", "transactionReference", "data.merchantReference", "data.transactionReference")
	if reference == "" || (event == "" && firstNonEmpty(params, "txnref", "txn_ref") == "") {
		return NotificationFields{}, false
	}

	status := firstNonEmpty(params, "data.responseCode", "responseCode", "resp")
	if status == "" && strings.HasPrefix(strings.ToUpper(event), "TRANSACTION.") {
		status = strings.TrimPrefix(strings.ToUpper(event), "TRANSACTION.")
	}

	return NotificationFields{
		Reference:      reference,
		NotificationID: firstNonEmpty(params, "uuid", "eventId", "id"),
		Status:         status,
	}, true
}

func paymentSwitchStatus(code string) entity.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "":
		return entity.PaymentStatusUnknown
	case "00":
		return entity.PaymentStatusSucceeded
	case "09", "10", "11", "Z0", "Z1":
		return entity.PaymentStatusPending
	default:
		return entity.PaymentStatusFailed
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(paymentSwitchMinorUnitExp).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -paymentSwitchMinorUnitExp)
}
