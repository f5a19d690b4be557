package models

type Status string

const (
	StatusPending         Status = "pending"
	StatusMorningAnswered Status = "morning_answered"
	StatusCompleted       Status = "completed"
	StatusMissed          Status = "missed"
)

// Valid reports whether s is one of the four lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusMorningAnswered, StatusCompleted, StatusMissed:
		return true
	}
	return false
}
