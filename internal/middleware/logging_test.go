package middleware_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SinaHo/community-gate-bot/internal/middleware"
	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
)

func TestEventLogging_SwallowsAndLogsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	failing := func(context.Context, model.Event) error {
		return fmt.Errorf("increment: %w", repository.ErrStoreUnavailable)
	}

	h := middleware.EventLogging(zap.New(core).Sugar(), failing)
	err := h(context.Background(), model.Command{Name: "start"})
	assert.NoError(t, err)

	entries := logs.FilterMessage("event failed").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "command", fields["kind"])
		assert.Equal(t, true, fields["store_unavailable"])
		assert.NotEmpty(t, fields["event_id"])
	}
}

func TestEventLogging_Success(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	called := false
	h := middleware.EventLogging(zap.New(core).Sugar(), func(context.Context, model.Event) error {
		called = true
		return nil
	})

	assert.NoError(t, h(context.Background(), model.TextMessage{}))
	assert.True(t, called)
	assert.Equal(t, 1, logs.FilterMessage("event handled").Len())
}

func TestUnaryLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	interceptor := middleware.UnaryLoggingInterceptor(zap.New(core).Sugar())

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	assert.Error(t, err)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "NotFound", entries[0].ContextMap()["code"])
	}
}
