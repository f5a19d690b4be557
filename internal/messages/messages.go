package messages

import (
	"fmt"
	"strings"
	"time"

	"mit-bot/internal/models"
)

const (
	MorningQuestion = "What is the most important thing to do today?"
	EveningQuestion = "Did you complete your most important thing today?"

	AlreadyAnswered = "You've already answered both questions for today! See you tomorrow morning."
	DayClosed       = "Today was already marked as missed, so there's nothing left to answer. See you tomorrow!"
	RegisterFirst   = "Please use /start to register first."
	RegisterToReply = "Please use /start to register first before answering questions."
	GenericError    = "An error occurred. Please try again."
	SaveError       = "An error occurred saving your response. Please try again."
	NoHistory       = "No history found yet. Answer your first daily question to start tracking!"
)

// Texts renders messages that mention the configured trigger times.
type Texts struct {
	morning string
	evening string
	zone    string
}

func NewTexts(morningHour, morningMinute, eveningHour, eveningMinute int, loc *time.Location) Texts {
	return Texts{
		morning: clockTime(morningHour, morningMinute),
		evening: clockTime(eveningHour, eveningMinute),
		zone:    loc.String(),
	}
}

// clockTime renders "5:00 AM" / "7:00 PM".
func clockTime(hour, minute int) string {
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format("3:04 PM")
}

func (t Texts) Welcome() string {
	return fmt.Sprintf(`👋 Welcome to MIT Bot!

I'll help you track your Most Important Thing (MIT) every day.

Here's how it works:
• Every morning at %s (%s), I'll ask: "%s"
• Every evening at %s, I'll ask: "%s"
• I'll store all your responses so you can track your progress

Use /help to see available commands.`, t.morning, t.zone, MorningQuestion, t.evening, EveningQuestion)
}

func (t Texts) Help(historyLimit int) string {
	return fmt.Sprintf(`🤖 MIT Bot Commands:

/start - Register and start using the bot
/help - Show this help message
/today - See today's question and your response
/history - View your recent responses (last %d days)
/stats - See your completion statistics

Just reply with text to answer the daily questions!`, historyLimit)
}

func (t Texts) MorningSaved() string {
	return fmt.Sprintf("✅ Got it! I'll check in with you at %s to see if you completed it.", t.evening)
}

func (t Texts) EveningSaved() string {
	return fmt.Sprintf("✅ Response saved! See you tomorrow at %s.", t.morning)
}

func (t Texts) LateMorningSaved() string {
	return fmt.Sprintf("📝 Noted, but today was already marked as missed. See you tomorrow at %s!", t.morning)
}

func (t Texts) SkipEvening() string {
	return fmt.Sprintf("You didn't answer this morning's question, so I'm skipping the evening check-in. See you tomorrow at %s!", t.morning)
}

func (t Texts) NoQuestionsToday() string {
	return fmt.Sprintf("No questions have been sent today yet. Your morning question will arrive at %s (%s).", t.morning, t.zone)
}

// FormatToday renders /today. Answer times are shown in loc.
func FormatToday(q *models.DailyQuestion, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Today (%s):\n\n", q.Date)

	if q.MorningSentAt != nil || q.MorningResponse != nil {
		writeSlot(&b, "Morning", MorningQuestion, q.MorningResponse, q.MorningRespondedAt, loc)
		b.WriteString("\n")
	}
	if q.EveningSentAt != nil || q.EveningResponse != nil {
		writeSlot(&b, "Evening", EveningQuestion, q.EveningResponse, q.EveningRespondedAt, loc)
	}
	if q.Status == models.StatusMissed {
		b.WriteString("❌ Marked as missed.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSlot(b *strings.Builder, label, question string, resp *string, at *time.Time, loc *time.Location) {
	fmt.Fprintf(b, "❓ %s Question: %s\n", label, question)
	if resp == nil {
		b.WriteString("⏳ Waiting for your answer...\n")
		return
	}
	fmt.Fprintf(b, "✏️ Your Answer: \"%s\"\n", *resp)
	if at != nil {
		fmt.Fprintf(b, "🕐 Answered at: %s\n", at.In(loc).Format("3:04 PM"))
	}
}

func statusMark(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return "✅"
	case models.StatusMissed:
		return "❌"
	default:
		return "⏳"
	}
}

func FormatHistory(questions []models.DailyQuestion) string {
	if len(questions) == 0 {
		return NoHistory
	}

	var b strings.Builder
	b.WriteString("📚 Your Recent History:\n\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "%s %s\n", statusMark(q.Status), q.Date)
		if q.MorningResponse != nil {
			fmt.Fprintf(&b, "   MIT: \"%s\"\n", *q.MorningResponse)
		}
		if q.EveningResponse != nil {
			fmt.Fprintf(&b, "   Completed: \"%s\"\n", *q.EveningResponse)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatStats(s models.Stats) string {
	var cheer string
	switch {
	case s.CompletionRate >= 80:
		cheer = "🎉 Great job! Keep up the excellent work!"
	case s.CompletionRate >= 50:
		cheer = "👍 You're doing well! Try to be more consistent."
	default:
		cheer = "💪 Keep going! Consistency is key."
	}

	return fmt.Sprintf(`📊 Your Statistics:

Total Days Tracked: %d
Completed: %d ✅
Missed: %d ❌
Completion Rate: %d%%

%s`, s.Total, s.Completed, s.Missed, s.CompletionRate, cheer)
}
