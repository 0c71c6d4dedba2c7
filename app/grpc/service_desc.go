package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-payment-sessions/app/types"
	"google.golang.org/grpc"
)

const (
	serviceName             = "payments.v1.PaymentSessions"
	healthMethod            = "/" + serviceName + "/Health"
	verifyMethod            = "/" + serviceName + "/Verify"
	listNotificationsMethod = "/" + serviceName + "/ListNotifications"
)

type PaymentSessionsServer interface {
	Health(context.Context, *types.HealthRequest) (*types.HealthResponse, error)
	Verify(context.Context, *types.VerifyRequest) (*types.VerifyResponse, error)
	ListNotifications(context.Context, *types.ListNotificationsRequest) (*types.ListNotificationsResponse, error)
}

func RegisterPaymentSessionsServer(s grpc.ServiceRegistrar, srv PaymentSessionsServer) {
	s.RegisterService(&paymentSessionsServiceDesc, srv)
}

var paymentSessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PaymentSessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: healthHandler},
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "ListNotifications", Handler: listNotificationsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payments/v1/payment_sessions",
}

func healthHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentSessionsServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: healthMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PaymentSessionsServer).Health(ctx, req.(*types.HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func verifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.VerifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentSessionsServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PaymentSessionsServer).Verify(ctx, req.(*types.VerifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listNotificationsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.ListNotificationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentSessionsServer).ListNotifications(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listNotificationsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PaymentSessionsServer).ListNotifications(ctx, req.(*types.ListNotificationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// PaymentSessionsClient calls the service over a connection using the JSON codec.
type PaymentSessionsClient struct {
	cc grpc.ClientConnInterface
}

func NewPaymentSessionsClient(cc grpc.ClientConnInterface) *PaymentSessionsClient {
	return &PaymentSessionsClient{cc: cc}
}

func (c *PaymentSessionsClient) Health(ctx context.Context, in *types.HealthRequest, opts ...grpc.CallOption) (*types.HealthResponse, error) {
	out := new(types.HealthResponse)
	if err := c.cc.Invoke(ctx, healthMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaymentSessionsClient) Verify(ctx context.Context, in *types.VerifyRequest, opts ...grpc.CallOption) (*types.VerifyResponse, error) {
	out := new(types.VerifyResponse)
	if err := c.cc.Invoke(ctx, verifyMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaymentSessionsClient) ListNotifications(ctx context.Context, in *types.ListNotificationsRequest, opts ...grpc.CallOption) (*types.ListNotificationsResponse, error) {
	out := new(types.ListNotificationsResponse)
	if err := c.cc.Invoke(ctx, listNotificationsMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
}
