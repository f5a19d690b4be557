package handlers

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"mit-bot/internal/lifecycle"
	"mit-bot/internal/messages"
	"mit-bot/internal/metrics"
	"mit-bot/internal/models"
	"mit-bot/internal/storage"
)

// HandleText routes a free-text answer into today's record.
func (h *Handler) HandleText(ctx context.Context, msg *tgbotapi.Message) error {
	outcome, reply, err := h.Answer(ctx, msg.From.ID, msg.Text)
	metrics.AnswersTotal.WithLabelValues(outcome).Inc()
	h.reply(ctx, msg.Chat.ID, reply)
	return err
}

// Answer stores text in the first open slot of today's record and returns the
// outcome label plus the reply for the sender. A lost write (another answer
// filled the slot first) is re-evaluated against the fresh record, so no
// answer overwrites another.
func (h *Handler) Answer(ctx context.Context, platformID int64, text string) (string, string, error) {
	user, err := h.store.GetUserByPlatformID(ctx, platformID)
	if err != nil {
		return "error", messages.SaveError, fmt.Errorf("load user %d: %w", platformID, err)
	}
	if user == nil {
		return "unregistered", messages.RegisterToReply, nil
	}

	date := h.clock.Today()
	log := h.log.With(zap.Int64("user_id", user.ID), zap.String("date", date))

	for attempt := 0; attempt < 3; attempt++ {
		q, err := h.store.GetDailyQuestion(ctx, user.ID, date)
		if err != nil {
			return "error", messages.SaveError, fmt.Errorf("load question: %w", err)
		}

		outcome := lifecycle.InboundAnswer(q)
		var reply string
		switch outcome {
		case lifecycle.AnswerNoQuestion:
			return outcome.String(), h.texts.NoQuestionsToday(), nil
		case lifecycle.AnswerRejected:
			return outcome.String(), rejectText(q), nil
		case lifecycle.AnswerMorning:
			reply = h.texts.MorningSaved()
			err = h.store.RecordMorningResponse(ctx, q.ID, text)
		case lifecycle.AnswerLateMorning:
			reply = h.texts.LateMorningSaved()
			err = h.store.RecordMorningResponse(ctx, q.ID, text)
		case lifecycle.AnswerEvening:
			reply = h.texts.EveningSaved()
			err = h.store.RecordEveningResponse(ctx, q.ID, text)
		}

		if errors.Is(err, storage.ErrConflict) {
			log.Warn("answer raced with another write, re-evaluating", zap.Stringer("outcome", outcome))
			continue
		}
		if err != nil {
			return "error", messages.SaveError, fmt.Errorf("save %s answer: %w", outcome, err)
		}
		log.Info("answer saved", zap.Stringer("outcome", outcome), zap.Int64("question_id", q.ID))
		return outcome.String(), reply, nil
	}
	return "error", messages.SaveError, fmt.Errorf("save answer for user %d: %w", user.ID, storage.ErrConflict)
}

func rejectText(q *models.DailyQuestion) string {
	if q.Status == models.StatusMissed {
		return messages.DayClosed
	}
	return messages.AlreadyAnswered
}
