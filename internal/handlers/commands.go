package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"mit-bot/internal/messages"
	"mit-bot/internal/metrics"
	"mit-bot/internal/models"
)

// HandleCommand dispatches read-only commands. /start is the only one that
// writes, and it only touches the users table.
func (h *Handler) HandleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	cmd := msg.Command()
	switch cmd {
	case "start", "help", "today", "history", "stats":
	default:
		h.log.Debug("ignoring unknown command", zap.String("command", cmd))
		return nil
	}
	metrics.CommandsTotal.WithLabelValues(cmd).Inc()

	chatID := msg.Chat.ID
	switch cmd {
	case "start":
		return h.HandleStart(ctx, msg)
	case "help":
		h.reply(ctx, chatID, h.texts.Help(h.historyLimit))
		return nil
	}

	// остальные команды только для зарегистрированных
	user, err := h.store.GetUserByPlatformID(ctx, msg.From.ID)
	if err != nil {
		h.reply(ctx, chatID, messages.GenericError)
		return fmt.Errorf("/%s: load user: %w", cmd, err)
	}
	if user == nil {
		h.reply(ctx, chatID, messages.RegisterFirst)
		return nil
	}

	var text string
	switch cmd {
	case "today":
		text, err = h.today(ctx, user)
	case "history":
		text, err = h.history(ctx, user)
	case "stats":
		text, err = h.stats(ctx, user)
	}
	if err != nil {
		h.reply(ctx, chatID, messages.GenericError)
		return fmt.Errorf("/%s: %w", cmd, err)
	}
	h.reply(ctx, chatID, text)
	return nil
}

// ---------------- /start --------------------
func (h *Handler) HandleStart(ctx context.Context, msg *tgbotapi.Message) error {
	u, err := h.store.UpsertUser(ctx, &models.User{
		PlatformID: msg.From.ID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
		LastName:   msg.From.LastName,
	})
	if err != nil {
		h.reply(ctx, msg.Chat.ID, messages.GenericError)
		return fmt.Errorf("/start: %w", err)
	}

	h.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	h.reply(ctx, msg.Chat.ID, h.texts.Welcome())
	return nil
}

func (h *Handler) today(ctx context.Context, u *models.User) (string, error) {
	q, err := h.store.GetDailyQuestion(ctx, u.ID, h.clock.Today())
	if err != nil {
		return "", err
	}
	if q == nil {
		return h.texts.NoQuestionsToday(), nil
	}
	return messages.FormatToday(q, h.clock.Location()), nil
}

func (h *Handler) history(ctx context.Context, u *models.User) (string, error) {
	qs, err := h.store.History(ctx, u.ID, h.historyLimit)
	if err != nil {
		return "", err
	}
	return messages.FormatHistory(qs), nil
}

func (h *Handler) stats(ctx context.Context, u *models.User) (string, error) {
	s, err := h.store.Stats(ctx, u.ID)
	if err != nil {
		return "", err
	}
	return messages.FormatStats(s), nil
}
