package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Run long-polls Telegram and dispatches updates one at a time until ctx
// is cancelled.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	slog.Info("Telegram bot started", "username", api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}
