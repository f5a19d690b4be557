package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit-bot/internal/clock"
	"mit-bot/internal/messages"
	"mit-bot/internal/models"
	"mit-bot/internal/storage"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

const (
	today  = "2024-05-01"
	chatID = int64(42)
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	db     *storage.DB
	sender *fakeSender
	texts  messages.Texts
	h      *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	fc := clockwork.NewFakeClockAt(t0)
	db, err := storage.New(filepath.Join(t.TempDir(), "bot.db"), fc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{db: db, sender: &fakeSender{}, texts: messages.NewTexts(5, 0, 19, 0, ny)}
	f.h = NewHandler(db, f.sender, clock.New(fc, ny), f.texts, 10, nil)
	return f
}

func (f *fixture) withHandler(store Store) *Handler {
	return NewHandler(store, f.sender, f.h.clock, f.texts, 10, nil)
}

func (f *fixture) register(t *testing.T) *models.User {
	t.Helper()
	u, err := f.db.UpsertUser(context.Background(), &models.User{PlatformID: chatID, Username: "dylan"})
	require.NoError(t, err)
	return u
}

// openDay creates today's record with the morning prompt already sent.
func (f *fixture) openDay(t *testing.T, u *models.User) *models.DailyQuestion {
	t.Helper()
	ctx := context.Background()
	q, err := f.db.CreateDailyQuestion(ctx, u.ID, today)
	require.NoError(t, err)
	require.NoError(t, f.db.RecordMorningSent(ctx, q.ID))
	return q
}

func (f *fixture) reload(t *testing.T, u *models.User) *models.DailyQuestion {
	t.Helper()
	q, err := f.db.GetDailyQuestion(context.Background(), u.ID, today)
	require.NoError(t, err)
	return q
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		From: &tgbotapi.User{ID: chatID, UserName: "dylan", FirstName: "Dylan", LastName: "K"},
	}}
}

func commandUpdate(name string) tgbotapi.Update {
	upd := textUpdate("/" + name)
	upd.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name) + 1}}
	return upd
}

func TestStart_RegistersUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("start")))
	assert.Equal(t, f.texts.Welcome(), f.sender.last())

	u, err := f.db.GetUserByPlatformID(ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "dylan", u.Username)
	assert.Equal(t, "Dylan", u.FirstName)
	assert.Equal(t, "K", u.LastName)

	// repeating /start is an upsert, not a second user
	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("start")))
	again, err := f.db.GetUserByPlatformID(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("stats")))
	assert.Equal(t, messages.RegisterFirst, f.sender.last())

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("help")))
	assert.Equal(t, f.texts.Help(10), f.sender.last())

	u := f.register(t)

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("today")))
	assert.Equal(t, f.texts.NoQuestionsToday(), f.sender.last())

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("history")))
	assert.Equal(t, messages.NoHistory, f.sender.last())

	q := f.openDay(t, u)
	require.NoError(t, f.db.RecordMorningResponse(ctx, q.ID, "Write the report"))

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("today")))
	assert.Contains(t, f.sender.last(), `"Write the report"`)

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("history")))
	assert.Contains(t, f.sender.last(), today)

	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("stats")))
	assert.Equal(t, messages.FormatStats(models.Stats{Total: 1}), f.sender.last())

	// unknown commands and command-looking text are ignored
	n := f.sender.count()
	require.NoError(t, f.h.HandleUpdate(ctx, commandUpdate("settings")))
	require.NoError(t, f.h.HandleUpdate(ctx, textUpdate("/today@other_bot please")))
	assert.Equal(t, n, f.sender.count())
	assert.Equal(t, "Write the report", *f.reload(t, u).MorningResponse)
}

func TestAnswer_Unregistered(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.h.HandleUpdate(context.Background(), textUpdate("hello")))
	assert.Equal(t, messages.RegisterToReply, f.sender.last())
}

func TestAnswer_NoQuestionToday(t *testing.T) {
	f := newFixture(t)
	u := f.register(t)

	require.NoError(t, f.h.HandleUpdate(context.Background(), textUpdate("hello")))
	assert.Equal(t, f.texts.NoQuestionsToday(), f.sender.last())
	assert.Nil(t, f.reload(t, u), "router never creates a record")
}

func TestAnswer_FullDay(t *testing.T) {
	f := newFixture(t)
	u := f.register(t)
	f.openDay(t, u)
	ctx := context.Background()

	require.NoError(t, f.h.HandleUpdate(ctx, textUpdate("Ship the release")))
	assert.Equal(t, f.texts.MorningSaved(), f.sender.last())
	q := f.reload(t, u)
	assert.Equal(t, models.StatusMorningAnswered, q.Status)
	assert.Equal(t, "Ship the release", *q.MorningResponse)

	// evening prompt not sent yet: the answer still lands in the evening slot
	require.NoError(t, f.h.HandleUpdate(ctx, textUpdate("Yes, shipped")))
	assert.Equal(t, f.texts.EveningSaved(), f.sender.last())
	q = f.reload(t, u)
	assert.Equal(t, models.StatusCompleted, q.Status)
	assert.Equal(t, "Yes, shipped", *q.EveningResponse)
	assert.NotNil(t, q.EveningRespondedAt)

	require.NoError(t, f.h.HandleUpdate(ctx, textUpdate("one more thing")))
	assert.Equal(t, messages.AlreadyAnswered, f.sender.last())
	q = f.reload(t, u)
	assert.Equal(t, "Ship the release", *q.MorningResponse)
	assert.Equal(t, "Yes, shipped", *q.EveningResponse)
}

func TestAnswer_MissedDay(t *testing.T) {
	f := newFixture(t)
	u := f.register(t)
	q := f.openDay(t, u)
	ctx := context.Background()
	require.NoError(t, f.db.MarkMissed(ctx, q.ID))

	require.NoError(t, f.h.HandleUpdate(ctx, textUpdate("sorry, overslept")))
	assert.Equal(t, f.texts.LateMorningSaved(), f.sender.last())
	q = f.reload(t, u)
	assert.Equal(t, models.StatusMissed, q.Status)
	assert.Equal(t, "sorry, overslept", *q.MorningResponse)

	require.NoError(t, f.h.HandleUpdate(ctx, textUpdate("did it anyway")))
	assert.Equal(t, messages.DayClosed, f.sender.last())
	q = f.reload(t, u)
	assert.Nil(t, q.EveningResponse)
	assert.Equal(t, models.StatusMissed, q.Status)
}

// racingStore lets another answer win the morning slot right before ours.
type racingStore struct {
	*storage.DB
	once sync.Once
}

func (r *racingStore) RecordMorningResponse(ctx context.Context, id int64, text string) error {
	r.once.Do(func() { _ = r.DB.RecordMorningResponse(ctx, id, "first") })
	return r.DB.RecordMorningResponse(ctx, id, text)
}

func TestAnswer_LostRaceMovesToEvening(t *testing.T) {
	f := newFixture(t)
	u := f.register(t)
	f.openDay(t, u)
	h := f.withHandler(&racingStore{DB: f.db})

	outcome, reply, err := h.Answer(context.Background(), chatID, "second")
	require.NoError(t, err)
	assert.Equal(t, "evening", outcome)
	assert.Equal(t, f.texts.EveningSaved(), reply)

	q := f.reload(t, u)
	assert.Equal(t, "first", *q.MorningResponse)
	assert.Equal(t, "second", *q.EveningResponse)
}

type failingStore struct {
	*storage.DB
}

func (failingStore) GetDailyQuestion(context.Context, int64, string) (*models.DailyQuestion, error) {
	return nil, errors.New("database is locked")
}

func TestAnswer_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	h := f.withHandler(failingStore{f.db})

	err := h.HandleUpdate(context.Background(), textUpdate("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, messages.SaveError, f.sender.last())
}

func TestHandleUpdate_IgnoresNonMessages(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.h.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1}))
	require.NoError(t, f.h.HandleUpdate(context.Background(), textUpdate("   ")))
	assert.Zero(t, f.sender.count())
}
