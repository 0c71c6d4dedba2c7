package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

const (
	CardGatewayID = "cardgateway"

	cardGatewayTokenPath    = "/api/Auth/RequestToken"
	cardGatewayRegisterPath = "/api/URLSetup/RegisterIPN"
	cardGatewaySubmitPath   = "/api/Transactions/SubmitOrderRequest"
	cardGatewayStatusPath   = "/api/Transactions/GetTransactionStatus"

	cardGatewayMaxDescription = 100
)

type CardGatewayConfig struct {
	BaseURL               string
	ConsumerKey           string
	ConsumerSecret        string
	HostedPageURL         string
	NotificationType      string
	DefaultNotificationID string
	TokenTTL              time.Duration
	HTTPTimeout           time.Duration
}

// CardGatewayProvider talks to a consumer-key/secret gateway that issues short-lived
// bearer tokens and hosts the card entry page.
type CardGatewayProvider struct {
	cfg    CardGatewayConfig
	client *http.Client
	now    func() time.Time
}

type cardGatewayError struct {
	Type    string `json:"error_type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *cardGatewayError) String() string {
	return strings.TrimSpace(e.Code + " " + e.Message)
}

func NewCardGatewayProvider(cfg CardGatewayConfig) *CardGatewayProvider {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 5 * time.Minute
	}
	if strings.TrimSpace(cfg.NotificationType) == "" {
		cfg.NotificationType = http.MethodPost
	}

	return &CardGatewayProvider{
		cfg:    cfg,
		client: newHTTPClient(cfg.HTTPTimeout),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *CardGatewayProvider) ID() string {
	return CardGatewayID
}

func (p *CardGatewayProvider) DefaultChannelID() string {
	return strings.TrimSpace(p.cfg.DefaultNotificationID)
}

func (p *CardGatewayProvider) Authenticate(ctx context.Context) (*Token, error) {
	if strings.TrimSpace(p.cfg.ConsumerKey) == "" || strings.TrimSpace(p.cfg.ConsumerSecret) == "" {
		return nil, fmt.Errorf("%w: consumer credentials are not configured", ErrCredentialsRejected)
	}

	req, err := jsonRequest(p.ID(), http.MethodPost, p.cfg.BaseURL, cardGatewayTokenPath, "", map[string]string{
		"consumer_key":    p.cfg.ConsumerKey,
		"consumer_secret": p.cfg.ConsumerSecret,
	})
	if err != nil {
		return nil, err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return nil, credentialFailure(err)
	}

	var payload struct {
		Token      string            `json:"token"`
		ExpiryDate string            `json:"expiryDate"`
		Error      *cardGatewayError `json:"error"`
	}
	if err := decode(p.ID(), cardGatewayTokenPath, body, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsRejected, payload.Error.String())
	}
	if strings.TrimSpace(payload.Token) == "" {
		return nil, fmt.Errorf("%w: token missing", ErrInvalidResponse)
	}

	acquired := p.now()
	ttl := p.cfg.TokenTTL
	if expiry, err := time.Parse(time.RFC3339Nano, payload.ExpiryDate); err == nil {
		if remaining := expiry.Sub(acquired); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}

	return &Token{
		ProviderID: p.ID(),
		Bearer:     payload.Token,
		AcquiredAt: acquired,
		TTL:        ttl,
	}, nil
}

func (p *CardGatewayProvider) RegisterNotificationChannel(ctx context.Context, bearer, notificationURL string) (string, error) {
	req, err := jsonRequest(p.ID(), http.MethodPost, p.cfg.BaseURL, cardGatewayRegisterPath, bearer, map[string]string{
		"url":                   notificationURL,
		"ipn_notification_type": strings.ToUpper(p.cfg.NotificationType),
	})
	if err != nil {
		return "", err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return "", err
	}

	var payload struct {
		IPNID string            `json:"ipn_id"`
		Error *cardGatewayError `json:"error"`
	}
	if err := decode(p.ID(), cardGatewayRegisterPath, body, &payload); err != nil {
		return "", err
	}
	if payload.Error != nil {
		return "", fmt.Errorf("%w: register ipn: %s", ErrInvalidResponse, payload.Error.String())
	}
	if strings.TrimSpace(payload.IPNID) == "" {
		return "", fmt.Errorf("%w: ipn_id missing", ErrInvalidResponse)
	}
	return strings.TrimSpace(payload.IPNID), nil
}

func (p *CardGatewayProvider) SubmitOrder(ctx context.Context, bearer string, input *SubmitInput) (*SubmitOutput, error) {
	req, err := jsonRequest(p.ID(), http.MethodPost, p.cfg.BaseURL, cardGatewaySubmitPath, bearer, map[string]interface{}{
		"id":              input.OrderID,
		"currency":        input.Currency,
		"amount":          json.Number(input.Amount.StringFixed(2)),
		"description":     clampDescription(input.Description),
		"callback_url":    input.CallbackURL,
		"notification_id": input.ChannelID,
		"billing_address": map[string]string{
			"email_address": input.Billing.Email,
			"phone_number":  input.Billing.Phone,
			"country_code":  input.Billing.CountryCode,
			"first_name":    input.Billing.FirstName,
			"last_name":     input.Billing.LastName,
		},
	})
	if err != nil {
		return nil, err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderTrackingID string            `json:"order_tracking_id"`
		RedirectURL     string            `json:"redirect_url"`
		Error           *cardGatewayError `json:"error"`
	}
	if err := decode(p.ID(), cardGatewaySubmitPath, body, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: submit order: %s", ErrInvalidResponse, payload.Error.String())
	}

	redirectURL := strings.TrimSpace(payload.RedirectURL)
	if redirectURL == "" {
		return nil, ErrNoRedirectURL
	}

	return &SubmitOutput{
		RedirectURL:       redirectURL,
		ProviderReference: strings.TrimSpace(payload.OrderTrackingID),
	}, nil
}

func (p *CardGatewayProvider) QueryStatus(ctx context.Context, bearer, reference string) (*StatusOutput, error) {
	path := cardGatewayStatusPath + "?orderTrackingId=" + url.QueryEscape(reference)
	req, err := jsonRequest(p.ID(), http.MethodGet, p.cfg.BaseURL, path, bearer, nil)
	if err != nil {
		return nil, err
	}

	body, err := do(ctx, p.client, req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Description string            `json:"payment_status_description"`
		StatusCode  *int              `json:"status_code"`
		Amount      decimal.Decimal   `json:"amount"`
		Currency    string            `json:"currency"`
		Error       *cardGatewayError `json:"error"`
	}
	if err := decode(p.ID(), cardGatewayStatusPath, body, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil && strings.TrimSpace(payload.Error.Code) != "" {
		return nil, fmt.Errorf("%w: status query: %s", ErrInvalidResponse, payload.Error.String())
	}

	return &StatusOutput{
		Status:      cardGatewayStatus(payload.StatusCode, payload.Description),
		Description: payload.Description,
		Amount:      payload.Amount,
		Currency:    strings.ToUpper(payload.Currency),
	}, nil
}

func (p *CardGatewayProvider) HostedForm(input *SubmitInput) HostedForm {
	return HostedForm{
		Action: strings.TrimSpace(p.cfg.HostedPageURL),
		Fields: []FormField{
			{Name: "Amount", Value: input.Amount.StringFixed(2)},
			{Name: "Currency", Value: input.Currency},
			{Name: "Description", Value: clampDescription(input.Description)},
			{Name: "Type", Value: "MERCHANT"},
			{Name: "Reference", Value: input.OrderID},
			{Name: "FirstName", Value: input.Billing.FirstName},
			{Name: "LastName", Value: input.Billing.LastName},
			{Name: "Email", Value: input.Billing.Email},
			{Name: "PhoneNumber", Value: input.Billing.Phone},
		},
	}
}

func (p *CardGatewayProvider) ParseNotification(params map[string]string) (NotificationFields, bool) {
	trackingID := firstNonEmpty(params, "OrderTrackingId", "orderTrackingId", "order_tracking_id")
	if trackingID == "" {
		return NotificationFields{}, false
	}

	reference := firstNonEmpty(params, "OrderMerchantReference", "orderMerchantReference", "merchant_reference")
	if reference == "" {
		reference = trackingID
	}

	return NotificationFields{
		Reference: reference,
		Status:    firstNonEmpty(params, "payment_status_description", "status"),
	}, true
}

func cardGatewayStatus(code *int, description string) entity.PaymentStatus {
	if code != nil {
		switch *code {
		case 1:
			return entity.PaymentStatusSucceeded
		case 0, 2, 3:
			// 0 is INVALID, which the gateway also reports for unknown tracking ids
			if strings.TrimSpace(description) == "" && *code == 0 {
				return entity.PaymentStatusUnknown
			}
			return entity.PaymentStatusFailed
		}
	}
	return NormalizeStatus(description)
}

func clampDescription(description string) string {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) <= cardGatewayMaxDescription {
		return description
	}
	return string([]rune(description)[:cardGatewayMaxDescription])
}

// credentialFailure turns a 401/403 during token exchange into ErrCredentialsRejected.
func credentialFailure(err error) error {
	if errors.Is(err, ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) && (reqErr.StatusCode == http.StatusForbidden || reqErr.StatusCode == http.StatusBadRequest) {
		return fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
	}
	return err
}
