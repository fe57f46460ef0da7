package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
)

// EventHandler processes one inbound event.
type EventHandler func(ctx context.Context, ev model.Event) error

// EventLogging tags each event with an id and logs its outcome. Errors
// are swallowed here: they are scoped to the event and never reach the user.
func EventLogging(logger *zap.SugaredLogger, next EventHandler) EventHandler {
	return func(ctx context.Context, ev model.Event) error {
		eventID := uuid.NewString()
		start := time.Now()
		err := next(ctx, ev)
		duration := time.Since(start)

		if err != nil {
			logger.Errorw("event failed",
				"event_id", eventID,
				"kind", ev.Kind(),
				"duration", duration,
				"store_unavailable", errors.Is(err, repository.ErrStoreUnavailable),
				"error", err,
			)
			return nil
		}
		logger.Debugw("event handled",
			"event_id", eventID,
			"kind", ev.Kind(),
			"duration", duration,
		)
		return nil
	}
}

// UnaryLoggingInterceptor logs every call on the admin gRPC endpoint.
func UnaryLoggingInterceptor(logger *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		st, _ := status.FromError(err)
		logger.Infow("gRPC call",
			"method", info.FullMethod,
			"duration", duration,
			"code", st.Code().String(),
			"error", err,
		)
		return resp, err
	}
}
