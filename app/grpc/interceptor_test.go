package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const verifyMethod = "/payments.v1.PaymentSessions/Verify"

// chain applies interceptors in the same order grpc.ChainUnaryInterceptor does.
func chain(interceptors ...grpc.UnaryServerInterceptor) func(context.Context, grpc.UnaryHandler) (interface{}, error) {
	return func(ctx context.Context, handler grpc.UnaryHandler) (interface{}, error) {
		info := &grpc.UnaryServerInfo{FullMethod: verifyMethod}
		next := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor, inner := interceptors[i], next
			next = func(ctx context.Context, req interface{}) (interface{}, error) {
				return interceptor(ctx, req, info, inner)
			}
		}
		return next(ctx, nil)
	}
}

func incomingRequestID(id string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, id))
}

func TestRequestIDFromMetadata(t *testing.T) {
	cases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "no metadata", ctx: context.Background(), want: ""},
		{name: "blank value", ctx: incomingRequestID("   "), want: ""},
		{name: "trimmed value", ctx: incomingRequestID(" grpc-abc "), want: "grpc-abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, requestIDFromMetadata(tc.ctx))
		})
	}
}

func TestRequestIDInterceptor(t *testing.T) {
	run := chain(RequestIDInterceptor())

	_, err := run(context.Background(), func(context.Context, interface{}) (interface{}, error) {
		t.Fatal("handler must not run without a request id")
		return nil, nil
	})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	var seen string
	_, err = run(incomingRequestID("grpc-fixed"), func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = RequestIDFromContext(ctx)
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "grpc-fixed", seen)
}

func TestInterceptorChainRecoversPanics(t *testing.T) {
	run := chain(RecoveryInterceptor(), RequestIDInterceptor(), LoggingInterceptor())

	_, err := run(incomingRequestID("grpc-panic"), func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestInterceptorChainPassesThrough(t *testing.T) {
	run := chain(RecoveryInterceptor(), RequestIDInterceptor(), LoggingInterceptor())

	resp, err := run(incomingRequestID("grpc-ok"), func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	_, err = run(incomingRequestID("grpc-err"), func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestLoggerWithContext(t *testing.T) {
	require.Same(t, interceptorLogger, loggerWithContext(context.Background()))
	require.NotSame(t, interceptorLogger, loggerWithContext(incomingRequestID("grpc-meta")))

	ctx := context.WithValue(context.Background(), requestIDKey{}, "from-context")
	require.NotSame(t, interceptorLogger, loggerWithContext(ctx))
}
