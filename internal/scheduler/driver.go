package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mit-bot/internal/clock"
	"mit-bot/internal/lifecycle"
	"mit-bot/internal/messages"
	"mit-bot/internal/metrics"
	"mit-bot/internal/models"
	"mit-bot/internal/storage"
)

// ErrSendFailed wraps transport errors. The slot is left unsent so a later
// firing (next process start, manual `trigger`) can retry it.
var ErrSendFailed = errors.New("scheduler: send failed")

type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetDailyQuestion(ctx context.Context, userID int64, date string) (*models.DailyQuestion, error)
	CreateDailyQuestion(ctx context.Context, userID int64, date string) (*models.DailyQuestion, error)
	RecordMorningSent(ctx context.Context, id int64) error
	RecordEveningSent(ctx context.Context, id int64) error
	MarkMissed(ctx context.Context, id int64) error
}

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeMissed     Outcome = "missed"
	OutcomeNoUser     Outcome = "no_user"
	OutcomeSendFailed Outcome = "send_failed"
	OutcomeError      Outcome = "error"
)

// Result describes what one firing did for one target.
type Result struct {
	Username string         `json:"username"`
	Date     string         `json:"date"`
	Slot     lifecycle.Slot `json:"slot"`
	Outcome  Outcome        `json:"outcome"`
	Reason   string         `json:"reason,omitempty"`
}

// Driver executes lifecycle decisions for the configured targets. It keeps no
// state between firings: idempotency comes from the persisted timestamps.
type Driver struct {
	store   Store
	sender  Sender
	clock   *clock.Clock
	texts   messages.Texts
	targets []string
	log     *zap.Logger
}

func NewDriver(store Store, sender Sender, clk *clock.Clock, texts messages.Texts, targets []string, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		store:   store,
		sender:  sender,
		clock:   clk,
		texts:   texts,
		targets: targets,
		log:     log.Named("driver"),
	}
}

// Fire runs slot's trigger for every target. Targets are independent: one
// failing does not stop the others, and all errors are returned joined.
func (d *Driver) Fire(ctx context.Context, slot lifecycle.Slot) ([]Result, error) {
	date := d.clock.Today()
	d.log.Info("running trigger", zap.String("slot", string(slot)), zap.String("date", date))

	results := make([]Result, 0, len(d.targets))
	var errs []error
	for _, handle := range d.targets {
		res, err := d.fireFor(ctx, slot, handle, date)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s trigger for @%s: %w", slot, handle, err))
		}
		metrics.TriggerTotal.WithLabelValues(string(slot), string(res.Outcome)).Inc()
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (d *Driver) fireFor(ctx context.Context, slot lifecycle.Slot, handle, date string) (Result, error) {
	res := Result{Username: handle, Date: date, Slot: slot, Outcome: OutcomeError}
	log := d.log.With(zap.String("slot", string(slot)), zap.String("username", handle), zap.String("date", date))

	// handle is resolved on every firing, never cached
	user, err := d.store.GetUserByUsername(ctx, handle)
	if err != nil {
		return res, fmt.Errorf("resolve user: %w", err)
	}
	if user == nil {
		log.Warn("target user not registered yet, they need to /start the bot first")
		res.Outcome = OutcomeNoUser
		return res, nil
	}
	log = log.With(zap.Int64("user_id", user.ID))

	var q *models.DailyQuestion
	if slot == lifecycle.Morning {
		q, err = d.store.CreateDailyQuestion(ctx, user.ID, date)
	} else {
		q, err = d.store.GetDailyQuestion(ctx, user.ID, date)
	}
	if err != nil {
		return res, fmt.Errorf("load question: %w", err)
	}

	if q != nil {
		log = log.With(zap.Int64("question_id", q.ID))
	}

	// a lost mark-missed race means an answer just landed; decide again once
	for attempt := 0; ; attempt++ {
		decision := lifecycle.Trigger(slot, q)
		res.Reason = decision.Reason

		switch decision.Action {
		case lifecycle.ActionNone:
			log.Info("nothing to do", zap.String("reason", decision.Reason))
			res.Outcome = OutcomeSkipped
			return res, nil

		case lifecycle.ActionSendMorning:
			return d.sendPrompt(ctx, log, res, user, q.ID, messages.MorningQuestion, d.store.RecordMorningSent)

		case lifecycle.ActionSendEvening:
			return d.sendPrompt(ctx, log, res, user, q.ID, messages.EveningQuestion, d.store.RecordEveningSent)

		case lifecycle.ActionMarkMissed:
			err := d.store.MarkMissed(ctx, q.ID)
			if errors.Is(err, storage.ErrConflict) && attempt == 0 {
				if q, err = d.store.GetDailyQuestion(ctx, user.ID, date); err != nil {
					return res, fmt.Errorf("reload question: %w", err)
				}
				continue
			}
			if errors.Is(err, storage.ErrConflict) {
				res.Outcome = OutcomeSkipped
				return res, nil
			}
			if err != nil {
				return res, fmt.Errorf("mark missed: %w", err)
			}

			log.Info("morning question not answered, marked as missed")
			res.Outcome = OutcomeMissed
			if err := d.sender.Send(ctx, user.PlatformID, d.texts.SkipEvening()); err != nil {
				metrics.SendFailures.WithLabelValues("skip_notice").Inc()
				log.Error("failed to send skip notice", zap.Error(err))
				return res, fmt.Errorf("%w: %w", ErrSendFailed, err)
			}
			return res, nil
		}
		return res, fmt.Errorf("unknown action %s", decision.Action)
	}
}

// sendPrompt sends first and records "sent" only after the transport acked.
func (d *Driver) sendPrompt(
	ctx context.Context,
	log *zap.Logger,
	res Result,
	user *models.User,
	questionID int64,
	text string,
	markSent func(context.Context, int64) error,
) (Result, error) {
	if err := d.sender.Send(ctx, user.PlatformID, text); err != nil {
		metrics.SendFailures.WithLabelValues(string(res.Slot)).Inc()
		log.Error("failed to send question, leaving slot unsent", zap.Error(err))
		res.Outcome = OutcomeSendFailed
		return res, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	res.Outcome = OutcomeSent
	err := markSent(ctx, questionID)
	switch {
	case errors.Is(err, storage.ErrConflict):
		// an overlapping firing recorded it first
		log.Warn("question already recorded as sent by a concurrent trigger")
	case err != nil:
		return res, fmt.Errorf("record sent: %w", err)
	default:
		log.Info("question sent", zap.Int64("chat_id", user.PlatformID))
	}
	return res, nil
}
