package main

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	nbot "github.com/edgard/nutribot/internal/bot"
	"github.com/edgard/nutribot/internal/bot/handlers"
	"github.com/edgard/nutribot/internal/bot/tasks"
	"github.com/edgard/nutribot/internal/logger"
	"github.com/edgard/nutribot/internal/telegram"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			log := a.log

			if seed {
				if err := a.seedDefaultCatalog(ctx); err != nil {
					return err
				}
			}

			// The default handler needs the orchestrator, which needs the
			// bot as its sender, so the handler is bound after creation.
			var messageHandler bot.HandlerFunc
			tg, err := telegram.NewTelegramBot(a.cfg.Telegram.Token, log,
				bot.WithMiddlewares(logger.Middleware(log)),
				bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
					messageHandler(ctx, b, update)
				}),
			)
			if err != nil {
				return err
			}

			a.cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to get bot info")
			}
			log.Info("Retrieved bot info", "bot_id", a.cfg.Telegram.BotInfo.ID, "bot_username", a.cfg.Telegram.BotInfo.Username)

			hDeps := handlers.HandlerDeps{
				Logger:       log,
				Config:       a.cfg,
				Sessions:     a.sessions,
				Tracker:      a.tracker,
				Orchestrator: a.orchestrator(telegram.NewSender(tg)),
			}
			messageHandler = handlers.NewMessageHandler(hDeps)
			if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
				return err
			}

			sched, err := nbot.NewScheduler(log, &a.cfg.Scheduler, a.loc, tasks.RegisterAllTasks(tasks.TaskDeps{
				Logger:   log,
				Store:    a.store,
				Sessions: a.sessions,
				Tracker:  a.tracker,
				Catalog:  a.catalog,
			}))
			if err != nil {
				return err
			}

			return nbot.NewBot(log, tg, sched).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "Upsert the built-in catalog on startup")
	return cmd
}
