package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SinaHo/community-gate-bot/internal/config"
	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
	"github.com/SinaHo/community-gate-bot/internal/transport/telegram"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	updates chan tgbotapi.Update
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }
func (f *fakeAPI) StopReceivingUpdates()                                      {}

func (f *fakeAPI) sentTo(chatID int64) []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func startCommand(userID int64, args string) tgbotapi.Update {
	text := "/start"
	if args != "" {
		text += " " + args
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: userID},
		From:     &tgbotapi.User{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
}

func TestAppServer_EndToEnd(t *testing.T) {
	cfg := &config.Config{
		Telegram: config.TelegramConfig{Workers: 4},
		Store:    config.StoreConfig{Driver: config.DriverMemory},
		Referral: config.ReferralConfig{
			Threshold:       3,
			GroupInviteHash: "hash",
			RewardLink:      "https://t.me/+vip",
		},
		Diagnostics: config.DiagnosticsConfig{Enabled: true, Interval: 50 * time.Millisecond},
	}
	store, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)

	api := &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
	bot := telegram.NewBot(api, 0, cfg.Telegram.Workers, zap.NewNop().Sugar())
	app := newAppServer(cfg, zap.NewNop(), store, bot)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool {
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	// a join produces a challenge in the group
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:           &tgbotapi.Chat{ID: -100},
		NewChatMembers: []tgbotapi.User{{ID: 42, UserName: "alice"}},
	}}
	assert.Eventually(t, func() bool { return len(api.sentTo(-100)) == 1 }, time.Second, 10*time.Millisecond)

	u, err := store.Users().GetByID(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, model.StatePendingChallenge, u.State)

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: -100},
		From: &tgbotapi.User{ID: 42},
		Text: u.PendingAnswer.String,
	}}
	assert.Eventually(t, func() bool { return len(api.sentTo(-100)) == 3 }, time.Second, 10*time.Millisecond)

	// three distinct invitees unlock the reward for referrer 42
	for _, invitee := range []int64{55, 56, 57} {
		api.updates <- startCommand(invitee, "42")
	}
	assert.Eventually(t, func() bool { return len(api.sentTo(42)) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, api.sentTo(42)[0].Text, "https://t.me/+vip")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	app.GracefulStop()

	c, err := store.Referrals().GetByReferrer(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 3, c.InviteCount)
	assert.True(t, c.RewardIssued)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "sqlite"}})
	assert.Error(t, err)
}

func TestOpenStore_RedisUnavailable(t *testing.T) {
	cfg := &config.Config{
		Store: config.StoreConfig{Driver: config.DriverRedis},
		Redis: config.RedisConfig{Addr: "127.0.0.1:1"},
	}
	_, err := OpenStore(context.Background(), cfg)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}
