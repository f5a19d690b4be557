// Package cli wires config, storage, transport and the trigger strategies
// into the bot's commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mit-bot/internal/clock"
	"mit-bot/internal/config"
	"mit-bot/internal/handlers"
	"mit-bot/internal/logger"
	"mit-bot/internal/messages"
	"mit-bot/internal/scheduler"
	"mit-bot/internal/storage"
	"mit-bot/internal/telegram"
)

// app holds everything a command needs. The bot client is created lazily:
// `stats` never talks to Telegram.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	closeLog func()
	db       *storage.DB
	clock    *clock.Clock
	texts    messages.Texts
}

// offlineAnnotation marks commands that only read the store.
const offlineAnnotation = "offline"

func newApp(offline bool) (*app, error) {
	load := config.Load
	if offline {
		load = config.LoadOffline
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	clk := clock.New(nil, cfg.Location())
	db, err := storage.New(cfg.DBPath, clk.Clock)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open db: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		db:       db,
		clock:    clk,
		texts:    messages.NewTexts(cfg.MorningHour, cfg.MorningMinute, cfg.EveningHour, cfg.EveningMinute, cfg.Location()),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close db", zap.Error(err))
	}
	a.closeLog()
}

// core builds the pieces every bot-facing command shares.
func (a *app) core() (*telegram.Client, *scheduler.Driver, *handlers.Handler, error) {
	bot, err := telegram.New(a.cfg.TelegramToken)
	if err != nil {
		return nil, nil, nil, err
	}
	a.log.Info("authorized", zap.String("bot", bot.Username()))

	driver := scheduler.NewDriver(a.db, bot, a.clock, a.texts, a.cfg.TargetUsernames, a.log)
	h := handlers.NewHandler(a.db, bot, a.clock, a.texts, a.cfg.HistoryLimit, a.log)
	return bot, driver, h, nil
}

func (a *app) cronTrigger(driver *scheduler.Driver) (*scheduler.CronTrigger, error) {
	return scheduler.NewCronTrigger(
		driver,
		a.clock.Clock,
		a.clock.Location(),
		scheduler.AtTime{Hour: a.cfg.MorningHour, Minute: a.cfg.MorningMinute},
		scheduler.AtTime{Hour: a.cfg.EveningHour, Minute: a.cfg.EveningMinute},
		a.log,
	)
}

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

// NewRootCmd returns the command tree and a cleanup that releases whatever
// the executed command opened.
func NewRootCmd() (*cobra.Command, func()) {
	var a *app

	root := &cobra.Command{
		Use:           "mit-bot",
		Short:         "Daily Most Important Thing accountability bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a, err = newApp(cmd.Annotations[offlineAnnotation] == "true"); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}

	root.AddCommand(newPollCmd(), newServeCmd(), newTriggerCmd(), newStatsCmd())
	return root, func() {
		if a != nil {
			a.close()
		}
	}
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	root, cleanup := NewRootCmd()
	defer cleanup()
	return root.ExecuteContext(ctx)
}
