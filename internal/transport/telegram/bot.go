// Package telegram adapts the Telegram Bot API to the bot's event model.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/SinaHo/community-gate-bot/internal/middleware"
	"github.com/SinaHo/community-gate-bot/internal/model"
)

// API is the subset of *tgbotapi.BotAPI the adapter uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot receives updates by long polling and sends outbound messages.
type Bot struct {
	api         API
	logger      *zap.SugaredLogger
	pollTimeout int
	workers     int
}

// Dial authenticates against the Bot API with token.
func Dial(token string, pollTimeout, workers int, logger *zap.SugaredLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Infof("authorized on telegram as %s", api.Self.UserName)
	return NewBot(api, pollTimeout, workers, logger), nil
}

func NewBot(api API, pollTimeout, workers int, logger *zap.SugaredLogger) *Bot {
	if workers < 1 {
		workers = 1
	}
	return &Bot{api: api, logger: logger, pollTimeout: pollTimeout, workers: workers}
}

// Send implements service.Notifier.
func (b *Bot) Send(_ context.Context, msg model.OutboundMessage) error {
	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.Button != nil {
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(msg.Button.Text, msg.Button.ActionID),
			),
		)
	}
	if _, err := b.api.Send(out); err != nil {
		return fmt.Errorf("send to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

// Run polls for updates until ctx is cancelled, handing each event to
// handle on a bounded worker pool. In-flight events finish before Run
// returns.
func (b *Bot) Run(ctx context.Context, handle middleware.EventHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	// events outlive shutdown so a half-processed one is not cut off
	eventCtx := context.WithoutCancel(ctx)
	p := pool.New().WithMaxGoroutines(b.workers)
	defer p.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery != nil {
				b.ackCallback(update.CallbackQuery.ID)
			}
			for _, ev := range Events(update) {
				ev := ev
				p.Go(func() {
					if err := handle(eventCtx, ev); err != nil {
						b.logger.Errorw("event handler error", "kind", ev.Kind(), "error", err)
					}
				})
			}
		}
	}
}

func (b *Bot) ackCallback(id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.logger.Warnw("callback ack failed", "callback_id", id, "error", err)
	}
}
