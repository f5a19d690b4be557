package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"mit-bot/internal/clock"
	"mit-bot/internal/messages"
	"mit-bot/internal/models"
)

// Store is the part of storage.DB the inbound side touches.
type Store interface {
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByPlatformID(ctx context.Context, platformID int64) (*models.User, error)
	GetDailyQuestion(ctx context.Context, userID int64, date string) (*models.DailyQuestion, error)
	RecordMorningResponse(ctx context.Context, id int64, text string) error
	RecordEveningResponse(ctx context.Context, id int64, text string) error
	History(ctx context.Context, userID int64, limit int) ([]models.DailyQuestion, error)
	Stats(ctx context.Context, userID int64) (models.Stats, error)
}

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Handler struct {
	store        Store
	sender       Sender
	clock        *clock.Clock
	texts        messages.Texts
	historyLimit int
	log          *zap.Logger
}

func NewHandler(store Store, sender Sender, clk *clock.Clock, texts messages.Texts, historyLimit int, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:        store,
		sender:       sender,
		clock:        clk,
		texts:        texts,
		historyLimit: historyLimit,
		log:          log.Named("handlers"),
	}
}

// HandleUpdate is the single entry point for both long polling and the
// webhook. Only plain messages from a known sender are handled.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) error {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		return h.HandleCommand(ctx, msg)
	}
	// "/" without a recognised entity is still a command, never an answer
	if strings.HasPrefix(msg.Text, "/") || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return h.HandleText(ctx, msg)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.Send(ctx, chatID, text); err != nil {
		h.log.Error("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
