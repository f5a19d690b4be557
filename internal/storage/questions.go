package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"mit-bot/internal/models"
)

const questionColumns = `id, user_id, date,
    morning_sent_at, morning_response, morning_response_received_at,
    evening_sent_at, evening_response, evening_response_received_at,
    status, created_at, updated_at`

// ---------- lookups ---------------------------------------------------------

func (d *DB) GetDailyQuestion(ctx context.Context, userID int64, date string) (*models.DailyQuestion, error) {
	row := d.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM daily_questions WHERE user_id=? AND date=?`, userID, date)
	return scanQuestion(row)
}

func (d *DB) GetDailyQuestionByID(ctx context.Context, id int64) (*models.DailyQuestion, error) {
	row := d.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM daily_questions WHERE id=?`, id)
	return scanQuestion(row)
}

// CreateDailyQuestion inserts the (user, date) record unless it exists and
// returns whatever row is stored. Racing callers all observe the same row.
func (d *DB) CreateDailyQuestion(ctx context.Context, userID int64, date string) (*models.DailyQuestion, error) {
	now := d.now()
	_, err := d.ExecContext(ctx, `
        INSERT INTO daily_questions (user_id, date, status, created_at, updated_at)
        VALUES (?,?,?,?,?)
        ON CONFLICT(user_id, date) DO NOTHING
    `, userID, date, models.StatusPending, now, now)
	if err != nil {
		return nil, fmt.Errorf("create daily question %d/%s: %w", userID, date, err)
	}

	q, err := d.GetDailyQuestion(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("create daily question %d/%s: row not found after insert", userID, date)
	}
	return q, nil
}

// ---------- transitions -----------------------------------------------------
//
// Every transition is one guarded UPDATE: the WHERE clause carries the
// precondition and status is recomputed from the slot values in the same
// statement. SET expressions see the pre-update row.

func (d *DB) RecordMorningSent(ctx context.Context, id int64) error {
	now := d.now()
	return expectOne(d.ExecContext(ctx, `
        UPDATE daily_questions
        SET morning_sent_at=?, updated_at=?
        WHERE id=? AND morning_sent_at IS NULL`, now, now, id))
}

func (d *DB) RecordMorningResponse(ctx context.Context, id int64, text string) error {
	now := d.now()
	return expectOne(d.ExecContext(ctx, `
        UPDATE daily_questions
        SET morning_response=?,
            morning_response_received_at=?,
            status=CASE
                WHEN status='missed' THEN 'missed'
                WHEN evening_response IS NOT NULL THEN 'completed'
                ELSE 'morning_answered'
            END,
            updated_at=?
        WHERE id=? AND morning_response IS NULL`, text, now, now, id))
}

// RecordEveningSent refuses to mark the evening prompt sent into an
// unanswered morning.
func (d *DB) RecordEveningSent(ctx context.Context, id int64) error {
	now := d.now()
	return expectOne(d.ExecContext(ctx, `
        UPDATE daily_questions
        SET evening_sent_at=?, updated_at=?
        WHERE id=? AND evening_sent_at IS NULL AND morning_response IS NOT NULL`, now, now, id))
}

func (d *DB) RecordEveningResponse(ctx context.Context, id int64, text string) error {
	now := d.now()
	return expectOne(d.ExecContext(ctx, `
        UPDATE daily_questions
        SET evening_response=?,
            evening_response_received_at=?,
            status='completed',
            updated_at=?
        WHERE id=? AND evening_response IS NULL
          AND morning_response IS NOT NULL AND status<>'missed'`, text, now, now, id))
}

// MarkMissed closes the day. Only one caller can win it.
func (d *DB) MarkMissed(ctx context.Context, id int64) error {
	now := d.now()
	return expectOne(d.ExecContext(ctx, `
        UPDATE daily_questions
        SET status='missed', updated_at=?
        WHERE id=? AND morning_response IS NULL AND status<>'missed'`, now, id))
}

// ---------- history / stats -------------------------------------------------

func (d *DB) History(ctx context.Context, userID int64, limit int) ([]models.DailyQuestion, error) {
	rows, err := d.QueryContext(ctx, `
        SELECT `+questionColumns+` FROM daily_questions
        WHERE user_id=?
        ORDER BY date DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.DailyQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *q)
	}
	return res, rows.Err()
}

func (d *DB) Stats(ctx context.Context, userID int64) (models.Stats, error) {
	var s models.Stats
	err := d.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN status='completed' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status='missed' THEN 1 ELSE 0 END), 0)
        FROM daily_questions
        WHERE user_id=?`, userID,
	).Scan(&s.Total, &s.Completed, &s.Missed)
	if err != nil {
		return models.Stats{}, err
	}
	s.CompletionRate = CompletionRate(s.Completed, s.Total)
	return s, nil
}

// CompletionRate is completed/total as a whole percent, 0 for an empty history.
func CompletionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func scanQuestion(row scanner) (*models.DailyQuestion, error) {
	var (
		q                            models.DailyQuestion
		mSent, mResp, mRespAt        sql.NullString
		eSent, eResp, eRespAt        sql.NullString
		status, createdAt, updatedAt string
	)
	err := row.Scan(&q.ID, &q.UserID, &q.Date,
		&mSent, &mResp, &mRespAt,
		&eSent, &eResp, &eRespAt,
		&status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	q.Status = models.Status(status)
	if !q.Status.Valid() {
		return nil, fmt.Errorf("daily question %d: unknown status %q", q.ID, status)
	}
	q.MorningResponse = nullString(mResp)
	q.EveningResponse = nullString(eResp)
	if q.MorningSentAt, err = parseNullTS(mSent); err != nil {
		return nil, err
	}
	if q.MorningRespondedAt, err = parseNullTS(mRespAt); err != nil {
		return nil, err
	}
	if q.EveningSentAt, err = parseNullTS(eSent); err != nil {
		return nil, err
	}
	if q.EveningRespondedAt, err = parseNullTS(eRespAt); err != nil {
		return nil, err
	}
	if q.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if q.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}
