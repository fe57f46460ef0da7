// internal/server/app.go
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SinaHo/community-gate-bot/internal/config"
	"github.com/SinaHo/community-gate-bot/internal/diagnostics"
	"github.com/SinaHo/community-gate-bot/internal/handler"
	"github.com/SinaHo/community-gate-bot/internal/middleware"
	"github.com/SinaHo/community-gate-bot/internal/repository"
	"github.com/SinaHo/community-gate-bot/internal/service"
	"github.com/SinaHo/community-gate-bot/internal/transport/telegram"
)

type AppServer struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       repository.Store
	bot         *telegram.Bot
	coordinator *handler.Coordinator
	dumper      *diagnostics.Dumper
	scheduler   gocron.Scheduler
	health      *health.Server
	GRPC        *grpc.Server
}

func NewAppServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AppServer, error) {
	sugar := logger.Sugar()

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		sugar.Errorf("failed to open %s store: %v", cfg.Store.Driver, err)
		return nil, err
	}

	bot, err := telegram.Dial(cfg.Telegram.Token, cfg.Telegram.PollTimeout, cfg.Telegram.Workers, sugar.Named("telegram"))
	if err != nil {
		store.Close()
		return nil, err
	}

	app := newAppServer(cfg, logger, store, bot)
	sugar.Infof("AppServer initialized successfully")
	return app, nil
}

// OpenStore connects the backend selected by store.driver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return repository.NewPostgresStore(ctx, cfg.Postgres.DSN())
	case config.DriverRedis:
		rd := cfg.Redis
		return repository.DialRedisStore(ctx, rd.Addr, rd.Password, rd.DB, rd.KeyPrefix)
	case config.DriverMemory:
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newAppServer wires repository -> services -> coordinator around an
// already connected store and bot.
func newAppServer(cfg *config.Config, logger *zap.Logger, store repository.Store, bot *telegram.Bot) *AppServer {
	sugar := logger.Sugar()
	ref := cfg.Referral

	verifier := service.NewMembershipVerifier(
		store.Users(), service.NewChallengeGenerator(), bot, sugar.Named("verifier"), ref.Threshold)
	tracker := service.NewReferralTracker(
		store.Referrals(), bot, sugar.Named("referral"), ref.Threshold, ref.RewardLink)
	coordinator := handler.NewCoordinator(verifier, tracker, store.Users(), bot, sugar.Named("coordinator"), handler.Options{
		GroupInviteHash:         ref.GroupInviteHash,
		RequireVerifiedReferrer: ref.RequireVerifiedReferrer,
	})

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(middleware.UnaryLoggingInterceptor(sugar.Named("grpc"))),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	return &AppServer{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		bot:         bot,
		coordinator: coordinator,
		dumper:      diagnostics.NewDumper(store, sugar.Named("diagnostics")),
		health:      hs,
		GRPC:        grpcServer,
	}
}

// Run serves the health endpoint and processes chat events until ctx is
// cancelled.
func (a *AppServer) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		a.logger.Sugar().Errorf("listen error on %s: %v", addr, err)
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, lis)
}

func (a *AppServer) serve(ctx context.Context, lis net.Listener) error {
	sugar := a.logger.Sugar()

	go func() {
		sugar.Infof("gRPC health endpoint listening on %s", lis.Addr())
		if err := a.GRPC.Serve(lis); err != nil {
			sugar.Errorf("gRPC serve error: %v", err)
		}
	}()

	if a.cfg.Diagnostics.Enabled {
		s, err := a.dumper.Schedule(a.cfg.Diagnostics.Interval)
		if err != nil {
			return err
		}
		a.scheduler = s
	}

	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	dispatch := middleware.EventLogging(sugar.Named("events"), a.coordinator.Dispatch)
	return a.bot.Run(ctx, dispatch)
}

func (a *AppServer) GracefulStop() {
	sugar := a.logger.Sugar()
	sugar.Info("Shutting down gracefully")
	a.health.Shutdown()
	a.GRPC.GracefulStop()
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(); err != nil {
			sugar.Warnf("scheduler shutdown: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		sugar.Warnf("store close: %v", err)
	}
	sugar.Info("Resources closed, server stopped")
}
