package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mit-bot/internal/handlers"
	"mit-bot/internal/lifecycle"
	"mit-bot/internal/messages"
	"mit-bot/internal/scheduler"
	"mit-bot/internal/server"
)

func newPollCmd() *cobra.Command {
	var withHTTP bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Long-poll Telegram and fire the daily questions from an in-process cron",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			bot, driver, h, err := a.core()
			if err != nil {
				return err
			}
			// getUpdates is refused while a webhook is set
			if err := bot.DeleteWebhook(); err != nil {
				return err
			}
			cron, err := a.cronTrigger(driver)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return cron.Run(ctx) })
			g.Go(func() error { return bot.Poll(ctx, h.HandleUpdate, a.log.Named("poll")) })
			if withHTTP {
				srv := server.New(a.cfg.ListenAddr, a.cfg.WebhookSecret, h, driver, a.log)
				g.Go(func() error { return srv.Run(ctx) })
			}

			a.log.Info("bot started", zap.String("mode", "poll"), zap.Strings("targets", a.cfg.TargetUsernames))
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withHTTP, "http", false, "also serve /healthz, /metrics and /cron on LISTEN_ADDR")
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		withCron bool
		register bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive updates by webhook and triggers over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			bot, driver, h, err := a.core()
			if err != nil {
				return err
			}

			if a.cfg.WebhookSecret == "" {
				a.log.Warn("WEBHOOK_SECRET is empty, /webhook and /cron accept unsigned requests")
			}
			if register {
				if a.cfg.PublicURL == "" {
					return errors.New("--register needs PUBLIC_URL")
				}
				url := strings.TrimRight(a.cfg.PublicURL, "/") + "/webhook"
				if err := bot.SetWebhook(url, a.cfg.WebhookSecret); err != nil {
					return err
				}
				a.log.Info("webhook registered", zap.String("url", url))
			}

			// everything that can fail is built before anything starts
			strategies, err := a.serveStrategies(driver, h, withCron)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, s := range strategies {
				s := s
				g.Go(func() error { return s.Run(ctx) })
			}

			a.log.Info("bot started", zap.String("mode", "webhook"), zap.Bool("cron", withCron))
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withCron, "cron", false, "also fire the questions from an in-process cron")
	cmd.Flags().BoolVar(&register, "register", false, "register PUBLIC_URL/webhook with Telegram before serving")
	return cmd
}

func (a *app) serveStrategies(driver *scheduler.Driver, h *handlers.Handler, withCron bool) ([]scheduler.Strategy, error) {
	strategies := []scheduler.Strategy{server.New(a.cfg.ListenAddr, a.cfg.WebhookSecret, h, driver, a.log)}
	if withCron {
		cron, err := a.cronTrigger(driver)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, cron)
	}
	return strategies, nil
}

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "trigger morning|evening",
		Short:     "Fire one trigger now (manual replay after a failed send)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(lifecycle.Morning), string(lifecycle.Evening)},
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, ok := lifecycle.ParseSlot(args[0])
			if !ok {
				return fmt.Errorf("unknown slot %q", args[0])
			}

			a := appFrom(cmd)
			_, driver, _, err := a.core()
			if err != nil {
				return err
			}

			results, err := driver.Fire(cmd.Context(), slot)
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "@%s %s %s: %s %s\n", r.Username, r.Date, r.Slot, r.Outcome, r.Reason)
			}
			return err
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "stats <handle>",
		Short:       "Print a user's completion statistics",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			handle := strings.TrimPrefix(args[0], "@")

			user, err := a.db.GetUserByUsername(cmd.Context(), handle)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("@%s has not registered", handle)
			}
			st, err := a.db.Stats(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messages.FormatStats(st))
			return nil
		},
	}
}
