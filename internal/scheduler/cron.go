package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"mit-bot/internal/lifecycle"
)

// Strategy decides when the Driver fires. The in-process cron and the HTTP
// trigger endpoint are the two implementations; both run until ctx is done.
type Strategy interface {
	Run(ctx context.Context) error
}

// fireTimeout bounds one firing: a store call plus one outbound send per target.
const fireTimeout = 2 * time.Minute

// AtTime is a zone-local hour:minute.
type AtTime struct {
	Hour   int
	Minute int
}

func (a AtTime) String() string { return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute) }

// CronTrigger fires the Driver daily at the configured zone-local times.
type CronTrigger struct {
	sched gocron.Scheduler
	jobs  map[lifecycle.Slot]gocron.Job
	log   *zap.Logger
}

func NewCronTrigger(d *Driver, clk clockwork.Clock, loc *time.Location, morning, evening AtTime, log *zap.Logger) (*CronTrigger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("cron")

	opts := []gocron.SchedulerOption{
		gocron.WithLocation(loc),
		gocron.WithLogger(gocronLogger{log.Sugar()}),
	}
	if clk != nil {
		opts = append(opts, gocron.WithClock(clk))
	}

	// Создаём планировщик
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	c := &CronTrigger{sched: s, jobs: map[lifecycle.Slot]gocron.Job{}, log: log}
	for slot, at := range map[lifecycle.Slot]AtTime{lifecycle.Morning: morning, lifecycle.Evening: evening} {
		j, err := s.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(at.Hour), uint(at.Minute), 0))),
			gocron.NewTask(c.task(d, slot)),
			gocron.WithName(string(slot)),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("schedule %s job: %w", slot, err)
		}
		c.jobs[slot] = j
		log.Info("question scheduled", zap.String("slot", string(slot)), zap.Stringer("at", at), zap.String("timezone", loc.String()))
	}
	return c, nil
}

func (c *CronTrigger) task(d *Driver, slot lifecycle.Slot) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		defer cancel()
		if _, err := d.Fire(ctx, slot); err != nil {
			c.log.Error("trigger failed", zap.String("slot", string(slot)), zap.Error(err))
		}
	}
}

// Run starts the scheduler and blocks until ctx is done.
func (c *CronTrigger) Run(ctx context.Context) error {
	c.sched.Start()
	<-ctx.Done()
	if err := c.sched.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// NextRun reports when slot fires next. Only meaningful once running.
func (c *CronTrigger) NextRun(slot lifecycle.Slot) (time.Time, error) {
	j, ok := c.jobs[slot]
	if !ok {
		return time.Time{}, fmt.Errorf("no job for slot %q", slot)
	}
	return j.NextRun()
}

// RunNow fires slot immediately without touching the schedule.
func (c *CronTrigger) RunNow(slot lifecycle.Slot) error {
	j, ok := c.jobs[slot]
	if !ok {
		return fmt.Errorf("no job for slot %q", slot)
	}
	return j.RunNow()
}

// gocronLogger adapts zap to gocron's key/value logger.
type gocronLogger struct{ s *zap.SugaredLogger }

func (l gocronLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
