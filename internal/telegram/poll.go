package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const pollTimeout = 30

// UpdateFunc handles one update. Errors are logged, never fatal to the loop.
type UpdateFunc func(ctx context.Context, upd tgbotapi.Update) error

// Poll long-polls getUpdates and hands updates to fn one at a time until ctx
// is done. The webhook must be deleted first.
func (c *Client) Poll(ctx context.Context, fn UpdateFunc, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.Bot.GetUpdatesChan(u)
	defer c.Bot.StopReceivingUpdates()

	log.Info("polling for updates", zap.String("bot", c.Username()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if err := fn(ctx, upd); err != nil {
				log.Error("failed to handle update", zap.Int("update_id", upd.UpdateID), zap.Error(err))
			}
		}
	}
}
