package handler

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
)

// actorMetadataKey is the metadata counterpart of ActorHeader.
var actorMetadataKey = strings.ToLower(ActorHeader)

// actorFromContext reads the acting user from incoming call metadata, or
// returns an empty string.
func actorFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(actorMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// UnaryLogging logs each unary call with its outcome and latency.
func UnaryLogging(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = log.Error().Err(err)
		} else if err != nil {
			event = log.Warn().Str("error", err.Error())
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Str("actor_id", actorFromContext(ctx)).
			Dur("duration", time.Since(start)).
			Msg("gRPC call")

		return resp, err
	}
}

// UnaryRecovery turns handler panics into codes.Internal.
func UnaryRecovery(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("method", info.FullMethod).
					Msg("Panic recovered in gRPC handler")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
