package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
)

const maxNotificationBody = 1 << 20

// ErrNotificationTooLarge rejects IPN bodies over maxNotificationBody instead of truncating them.
var ErrNotificationTooLarge = errors.New("notification body exceeds 1 MiB")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func NewCreateSessionRequestFromContext(ctx echo.Context) (*CreateSessionRequest, error) {
	var body CreateSessionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Frequency = strings.ToLower(strings.TrimSpace(body.Frequency))
	if frequency, ok := entity.ParseFrequency(body.Frequency); ok && body.Frequency != "" {
		body.Frequency = string(frequency)
	}
	body.Description = strings.TrimSpace(body.Description)
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	if body.Customer != nil {
		body.Customer.Name = strings.TrimSpace(body.Customer.Name)
		body.Customer.Email = strings.TrimSpace(body.Customer.Email)
		body.Customer.Phone = strings.TrimSpace(body.Customer.Phone)
		body.Customer.Country = strings.ToUpper(strings.TrimSpace(body.Customer.Country))
	}

	return &body, nil
}

func (r *CreateSessionRequest) Validate() error {
	if !r.GetAmount().IsPositive() {
		return errors.New("amount must be > 0")
	}
	if !r.GetAmount().Equal(r.GetAmount().Round(2)) {
		return errors.New("amount must have at most 2 decimal places")
	}
	return validationError(validate.Struct(r))
}

// ToIntent converts the request body to the domain intent. Metadata values that are not
// strings are kept as their JSON encoding.
func (r *CreateSessionRequest) ToIntent() entity.PaymentIntent {
	metadata := make(map[string]string, len(r.GetMetadata()))
	for key, value := range r.GetMetadata() {
		switch v := value.(type) {
		case string:
			metadata[key] = v
		case nil:
		default:
			if encoded, err := json.Marshal(v); err == nil {
				metadata[key] = string(encoded)
			}
		}
	}

	customer := r.GetCustomer()
	return entity.PaymentIntent{
		Amount:   r.GetAmount(),
		Currency: r.GetCurrency(),
		Payer: entity.Payer{
			Name:    customer.GetName(),
			Email:   customer.GetEmail(),
			Phone:   customer.GetPhone(),
			Country: customer.GetCountry(),
		},
		Frequency:   entity.Frequency(r.GetFrequency()),
		Description: r.GetDescription(),
		Metadata:    metadata,
	}
}

func NewVerifyRequestFromContext(ctx echo.Context) (*VerifyRequest, error) {
	return &VerifyRequest{
		Reference: strings.TrimSpace(ctx.QueryParam("reference")),
		Amount:    strings.TrimSpace(ctx.QueryParam("amount")),
		Currency:  strings.ToUpper(strings.TrimSpace(ctx.QueryParam("currency"))),
	}, nil
}

func (r *VerifyRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// NewReceiveNotificationRequestFromContext captures an IPN delivery as received. Unknown
// fields and unparseable bodies are kept verbatim; only oversized bodies are rejected.
func NewReceiveNotificationRequestFromContext(ctx echo.Context) (*ReceiveNotificationRequest, error) {
	httpReq := ctx.Request()

	var body []byte
	if httpReq.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(httpReq.Body, maxNotificationBody+1))
		if err != nil {
			return nil, err
		}
		if len(raw) > maxNotificationBody {
			return nil, ErrNotificationTooLarge
		}
		body = raw
	}

	query := make(map[string]string)
	for key, values := range ctx.QueryParams() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	return &ReceiveNotificationRequest{
		Provider:    strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		Method:      httpReq.Method,
		Query:       query,
		RawQuery:    httpReq.URL.RawQuery,
		Body:        body,
		ContentType: httpReq.Header.Get(echo.HeaderContentType),
	}, nil
}

func NewGetOrderRequestFromContext(ctx echo.Context) (*GetOrderRequest, error) {
	return &GetOrderRequest{Id: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetOrderRequest) Validate() error {
	return validationError(validate.Struct(r))
}

func NewListNotificationsRequestFromContext(ctx echo.Context) (*ListNotificationsRequest, error) {
	req := &ListNotificationsRequest{}
	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}
	return req, nil
}

func (r *ListNotificationsRequest) Validate() error {
	return validationError(validate.Struct(r))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "email":
		return fmt.Errorf("%s must be a valid email address", field)
	case "len":
		return fmt.Errorf("%s must be %s characters", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte", "lte":
		return fmt.Errorf("%s must be between 0 and 500", field)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
