package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/service"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	paymentService *service.PaymentService
}

func NewServer(paymentService *service.PaymentService) *Server {
	return &Server{paymentService: paymentService}
}

func (s *Server) Health(_ context.Context, _ *types.HealthRequest) (*types.HealthResponse, error) {
	return &types.HealthResponse{Status: "ok"}, nil
}

func (s *Server) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	if err := req.Validate(); err != nil {
		loggerWithContext(ctx).WithError(err).Debug("Verify validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result := s.paymentService.Verify(ctx, req)
	return mapper.VerificationToResponse(result), nil
}

func (s *Server) ListNotifications(ctx context.Context, req *types.ListNotificationsRequest) (*types.ListNotificationsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	items, err := s.paymentService.ListNotifications(ctx, int(req.GetLimit()))
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("List notifications failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.ListNotificationsResponse{Notifications: mapper.NotificationsToResponse(items)}, nil
}
