package models

import "time"

// User is a person registered with the bot via /start.
type User struct {
	ID         int64     `db:"id"          json:"id"`
	PlatformID int64     `db:"platform_id" json:"platform_id"` // telegram user id
	Username   string    `db:"username"    json:"username"`    // без "@"
	FirstName  string    `db:"first_name"  json:"first_name"`
	LastName   string    `db:"last_name"   json:"last_name"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}

// DailyQuestion is the lifecycle record for one user on one calendar date.
// Date is zone-local, timestamps are UTC.
type DailyQuestion struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	Date   string `db:"date"` // YYYY-MM-DD

	MorningSentAt      *time.Time `db:"morning_sent_at"`
	MorningResponse    *string    `db:"morning_response"`
	MorningRespondedAt *time.Time `db:"morning_response_received_at"`
	EveningSentAt      *time.Time `db:"evening_sent_at"`
	EveningResponse    *string    `db:"evening_response"`
	EveningRespondedAt *time.Time `db:"evening_response_received_at"`

	Status    Status    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (q *DailyQuestion) MorningAnswered() bool { return q.MorningResponse != nil }
func (q *DailyQuestion) EveningAnswered() bool { return q.EveningResponse != nil }

// Stats aggregates a user's history.
type Stats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Missed         int `json:"missed"`
	CompletionRate int `json:"completion_rate"` // whole percent
}
