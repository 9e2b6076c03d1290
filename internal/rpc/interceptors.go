package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/doppler-simulator/internal/logging"
)

const requestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor puts a request_id on the context, taken
// from inbound metadata when the caller sent one, and attaches a logger
// tagged with the method. Records logged with the context carry the ID.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if ids := metadata.ValueFromIncomingContext(ctx, requestIDMetadataKey); len(ids) > 0 && ids[0] != "" {
			ctx = logging.ContextWithRequestID(ctx, ids[0])
		}
		ctx, _ = logging.EnsureRequestID(ctx)

		reqLog := base.With(logging.String("method", info.FullMethod))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		start := time.Now()
		resp, err := handler(ctx, req)
		reqLog.Debug(ctx, "rpc completed",
			logging.String("code", status.Code(err).String()),
			logging.Duration("elapsed", time.Since(start)),
		)
		return resp, err
	}
}
