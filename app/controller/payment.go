package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/factory"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/service"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// Config exposes what a checkout page needs to render. It never includes provider secrets.
func (c *PaymentController) Config(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.ConfigResponse{
		Providers:       c.paymentService.Providers(),
		DefaultProvider: c.paymentService.DefaultProvider(),
		PublicClientKey: c.paymentService.PublicClientKey(),
		MockMode:        c.paymentService.MockMode(),
	})
}

func (c *PaymentController) CreateSession(ctx echo.Context) error {
	req, err := types.NewCreateSessionRequestFromContext(ctx)
	if err != nil {
		return c.writeSessionError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeSessionError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.InitiateSession(ctx.Request().Context(), req.GetProvider(), req.ToIntent())
	if err != nil {
		l := factory.LoggerWithContext(c.logger, ctx)
		switch {
		case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeSessionError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrAuthFailed):
			l.WithError(err).Error("Create session authentication failed")
			return c.writeSessionError(ctx, http.StatusBadGateway, service.ErrAuthFailed.Error())
		case errors.Is(err, service.ErrOrderFailed):
			l.WithError(err).Error("Create session order failed")
			return c.writeSessionError(ctx, http.StatusBadGateway, service.ErrOrderFailed.Error())
		default:
			l.WithError(err).Error("Create session failed")
			return c.writeSessionError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.SessionToResponse(result))
}

// ReceiveNotification acknowledges any delivery that was persisted. A 5xx is returned only
// when the delivery could not be stored, so the provider retries it.
func (c *PaymentController) ReceiveNotification(ctx echo.Context) error {
	req, err := types.NewReceiveNotificationRequestFromContext(ctx)
	if err != nil {
		if errors.Is(err, types.ErrNotificationTooLarge) {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Oversized notification rejected")
			return c.writeError(ctx, http.StatusRequestEntityTooLarge, err.Error())
		}
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	record, err := c.paymentService.ReceiveNotification(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrPersistence) {
			return c.writeError(ctx, http.StatusServiceUnavailable, "notification could not be stored")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Receive notification failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.NotificationToAck(record))
}

func (c *PaymentController) Verify(ctx echo.Context) error {
	req, err := types.NewVerifyRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, &types.VerifyResponse{
			Reference: req.GetReference(),
			Status:    entity.VerificationStatusUnknown,
			Outcome:   string(entity.PaymentStatusUnknown),
			Error:     err.Error(),
		})
	}

	result := c.paymentService.Verify(ctx.Request().Context(), req)
	return ctx.JSON(http.StatusOK, mapper.VerificationToResponse(result))
}

func (c *PaymentController) GetOrder(ctx echo.Context) error {
	req, err := types.NewGetOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.GetOrderHistory(ctx.Request().Context(), req.GetId())
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get order failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.OrderHistoryToResponse(items))
}

func (c *PaymentController) ListNotifications(ctx echo.Context) error {
	req, err := types.NewListNotificationsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListNotifications(ctx.Request().Context(), int(req.GetLimit()))
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List notifications failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListNotificationsResponse{Notifications: mapper.NotificationsToResponse(items)})
}

func (c *PaymentController) writeSessionError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.CreateSessionResponse{Success: false, Error: message})
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
