package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit-bot/internal/models"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) (*DB, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	db, err := New(filepath.Join(t.TempDir(), "data", "bot.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, clock
}

func newTestUser(t *testing.T, db *DB) *models.User {
	t.Helper()
	u, err := db.UpsertUser(context.Background(), &models.User{
		PlatformID: 42,
		Username:   "dylan",
		FirstName:  "Dylan",
	})
	require.NoError(t, err)
	return u
}

func TestUpsertUser(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(t, db)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "dylan", u.Username)
	assert.Equal(t, "", u.LastName)
	assert.True(t, u.CreatedAt.Equal(t0))

	clock.Advance(time.Hour)
	again, err := db.UpsertUser(ctx, &models.User{PlatformID: 42, Username: "dylan_new", LastName: "K"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "dylan_new", again.Username)
	assert.Equal(t, "K", again.LastName)
	assert.True(t, again.CreatedAt.Equal(t0))
	assert.True(t, again.UpdatedAt.Equal(t0.Add(time.Hour)))

	byName, err := db.GetUserByUsername(ctx, "DYLAN_NEW")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ID, byName.ID)

	missing, err := db.GetUserByUsername(ctx, "dylan")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = db.GetUserByPlatformID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateDailyQuestion_Idempotent(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	u := newTestUser(t, db)

	q, err := db.GetDailyQuestion(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)
	assert.Nil(t, q)

	first, err := db.CreateDailyQuestion(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Nil(t, first.MorningSentAt)

	require.NoError(t, db.RecordMorningSent(ctx, first.ID))

	second, err := db.CreateDailyQuestion(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotNil(t, second.MorningSentAt, "duplicate create must not overwrite the row")
}

func TestCreateDailyQuestion_Concurrent(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	u := newTestUser(t, db)

	const workers = 8
	results := make([]*models.DailyQuestion, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = db.CreateDailyQuestion(ctx, u.ID, "2024-05-01")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, *results[0], *results[i])
	}

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM daily_questions`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTransitions_FullDay(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()
	u := newTestUser(t, db)

	q, err := db.CreateDailyQuestion(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)

	require.NoError(t, db.RecordMorningSent(ctx, q.ID))
	assert.ErrorIs(t, db.RecordMorningSent(ctx, q.ID), ErrConflict)

	// evening cannot be marked sent before the morning answer
	assert.ErrorIs(t, db.RecordEveningSent(ctx, q.ID), ErrConflict)
	assert.ErrorIs(t, db.RecordEveningResponse(ctx, q.ID, "early"), ErrConflict)

	clock.Advance(time.Minute)
	require.NoError(t, db.RecordMorningResponse(ctx, q.ID, "Ship the release"))
	assert.ErrorIs(t, db.RecordMorningResponse(ctx, q.ID, "again"), ErrConflict)

	q, err = db.GetDailyQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMorningAnswered, q.Status)
	require.NotNil(t, q.MorningResponse)
	assert.Equal(t, "Ship the release", *q.MorningResponse)
	assert.True(t, q.MorningRespondedAt.Equal(t0.Add(time.Minute)))

	assert.ErrorIs(t, db.MarkMissed(ctx, q.ID), ErrConflict, "answered morning cannot be missed")

	require.NoError(t, db.RecordEveningSent(ctx, q.ID))
	require.NoError(t, db.RecordEveningResponse(ctx, q.ID, "Done"))
	assert.ErrorIs(t, db.RecordEveningResponse(ctx, q.ID, "extra"), ErrConflict)

	q, err = db.GetDailyQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, q.Status)
	assert.Equal(t, "Done", *q.EveningResponse)
	assert.NotNil(t, q.EveningSentAt)
	assert.NotNil(t, q.EveningRespondedAt)
}

func TestTransitions_Missed(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	u := newTestUser(t, db)

	q, err := db.CreateDailyQuestion(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)

	require.NoError(t, db.MarkMissed(ctx, q.ID))
	assert.ErrorIs(t, db.MarkMissed(ctx, q.ID), ErrConflict, "only one caller wins mark-missed")

	// a late morning answer is kept, the day stays missed
	require.NoError(t, db.RecordMorningResponse(ctx, q.ID, "late"))
	assert.ErrorIs(t, db.RecordEveningResponse(ctx, q.ID, "evening"), ErrConflict)

	q, err = db.GetDailyQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissed, q.Status)
	assert.Equal(t, "late", *q.MorningResponse)
	assert.Nil(t, q.EveningResponse)
}

func TestTransitions_UnknownID(t *testing.T) {
	db, _ := newTestDB(t)
	assert.ErrorIs(t, db.RecordMorningSent(context.Background(), 999), ErrConflict)
}

func TestHistoryAndStats(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	u := newTestUser(t, db)

	stats, err := db.Stats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{}, stats)

	mk := func(date string) *models.DailyQuestion {
		q, err := db.CreateDailyQuestion(ctx, u.ID, date)
		require.NoError(t, err)
		return q
	}
	complete := func(q *models.DailyQuestion) {
		require.NoError(t, db.RecordMorningResponse(ctx, q.ID, "mit "+q.Date))
		require.NoError(t, db.RecordEveningResponse(ctx, q.ID, "done "+q.Date))
	}

	complete(mk("2024-05-01"))
	complete(mk("2024-05-02"))
	require.NoError(t, db.MarkMissed(ctx, mk("2024-05-03").ID))
	mk("2024-05-04")

	stats, err = db.Stats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 4, Completed: 2, Missed: 1, CompletionRate: 50}, stats)

	history, err := db.History(ctx, u.ID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2024-05-04", history[0].Date)
	assert.Equal(t, "2024-05-03", history[1].Date)
	assert.Equal(t, "2024-05-02", history[2].Date)
	assert.Equal(t, models.StatusMissed, history[1].Status)
}

func TestCompletionRate(t *testing.T) {
	assert.Equal(t, 0, CompletionRate(0, 0))
	assert.Equal(t, 33, CompletionRate(1, 3))
	assert.Equal(t, 67, CompletionRate(2, 3))
	assert.Equal(t, 100, CompletionRate(5, 5))
}

func TestStoreErrorsPropagate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, clockwork.NewFakeClockAt(t0))
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("create", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO daily_questions").WillReturnError(boom)
		_, err := db.CreateDailyQuestion(ctx, 1, "2024-05-01")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("transition", func(t *testing.T) {
		mock.ExpectExec("UPDATE daily_questions").WillReturnError(boom)
		err := db.RecordMorningSent(ctx, 1)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrConflict)
	})

	t.Run("lookup", func(t *testing.T) {
		mock.ExpectQuery("FROM daily_questions").WillReturnError(boom)
		_, err := db.GetDailyQuestion(ctx, 1, "2024-05-01")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("guard lost", func(t *testing.T) {
		mock.ExpectExec("UPDATE daily_questions").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, db.MarkMissed(ctx, 1), ErrConflict)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
