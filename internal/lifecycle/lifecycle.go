// Package lifecycle decides what a trigger or an inbound answer does to a
// day's question record. It has no I/O: callers load the record, ask for a
// decision, then perform the side effect and persist the transition.
//
// States for one (user, date):
//
//	NoRecord -> Pending -> MorningAnswered -> Completed
//	               |
//	               +-> Missed (evening fired before a morning answer)
//
// Decisions are keyed off field presence only, never wall-clock ordering.
package lifecycle

import "mit-bot/internal/models"

type Slot string

const (
	Morning Slot = "morning"
	Evening Slot = "evening"
)

func ParseSlot(s string) (Slot, bool) {
	switch Slot(s) {
	case Morning, Evening:
		return Slot(s), true
	}
	return "", false
}

// Action is the side effect a trigger should perform.
type Action int

const (
	ActionNone Action = iota
	ActionSendMorning
	ActionSendEvening
	ActionMarkMissed // persist Missed, then send the skip notice
)

func (a Action) String() string {
	switch a {
	case ActionSendMorning:
		return "send_morning"
	case ActionSendEvening:
		return "send_evening"
	case ActionMarkMissed:
		return "mark_missed"
	default:
		return "none"
	}
}

// Decision carries the action plus a short machine-readable reason for logs.
type Decision struct {
	Action Action
	Reason string
}

const (
	ReasonNoRecord      = "no_record"
	ReasonAlreadySent   = "already_sent"
	ReasonAlreadyMissed = "already_missed"
	ReasonMorningOpen   = "morning_unanswered"
	ReasonDue           = "due"
)

// MorningTrigger expects the record to exist: the driver creates it first
// because the morning trigger is the one that opens a day.
func MorningTrigger(q *models.DailyQuestion) Decision {
	if q == nil {
		return Decision{ActionNone, ReasonNoRecord}
	}
	if q.MorningSentAt != nil {
		return Decision{ActionNone, ReasonAlreadySent}
	}
	return Decision{ActionSendMorning, ReasonDue}
}

func EveningTrigger(q *models.DailyQuestion) Decision {
	switch {
	case q == nil:
		return Decision{ActionNone, ReasonNoRecord}
	case q.EveningSentAt != nil:
		return Decision{ActionNone, ReasonAlreadySent}
	case q.Status == models.StatusMissed:
		return Decision{ActionNone, ReasonAlreadyMissed}
	case !q.MorningAnswered():
		return Decision{ActionMarkMissed, ReasonMorningOpen}
	default:
		return Decision{ActionSendEvening, ReasonDue}
	}
}

// Trigger dispatches on slot.
func Trigger(slot Slot, q *models.DailyQuestion) Decision {
	if slot == Morning {
		return MorningTrigger(q)
	}
	return EveningTrigger(q)
}

// AnswerOutcome says where an inbound free-text answer lands.
type AnswerOutcome int

const (
	AnswerNoQuestion AnswerOutcome = iota // nothing sent today yet
	AnswerMorning
	AnswerEvening
	AnswerLateMorning // fills the morning slot of a missed day, status stays missed
	AnswerRejected    // both slots filled, or the day is closed
)

func (o AnswerOutcome) String() string {
	switch o {
	case AnswerMorning:
		return "morning"
	case AnswerEvening:
		return "evening"
	case AnswerLateMorning:
		return "late_morning"
	case AnswerRejected:
		return "rejected"
	default:
		return "no_question"
	}
}

// InboundAnswer fills morning strictly before evening, regardless of which
// triggers have fired.
func InboundAnswer(q *models.DailyQuestion) AnswerOutcome {
	switch {
	case q == nil:
		return AnswerNoQuestion
	case !q.MorningAnswered() && q.Status == models.StatusMissed:
		return AnswerLateMorning
	case !q.MorningAnswered():
		return AnswerMorning
	case q.Status == models.StatusMissed:
		return AnswerRejected
	case !q.EveningAnswered():
		return AnswerEvening
	default:
		return AnswerRejected
	}
}
