package appbootstrap

import (
	"context"

	"sokol-alert/api"
	"sokol-alert/config"
	"sokol-alert/core/alert"
	"sokol-alert/core/bot"
	"sokol-alert/core/rbac"
	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
	"sokol-alert/core/utils"
)

type runtimeComposition struct {
	dispatcher *bot.Dispatcher
	server     *api.Server
	deliveries store.DeliveriesStore
}

func composeRuntime(ctx context.Context, cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	subscribers := store.NewSubscribersStore(db)
	incidents := store.NewIncidentsStore(db)
	responses := store.NewResponsesStore(db)
	operators := store.NewOperatorsStore(db)
	deliveries := store.NewDeliveriesStore(db)

	enforcer, err := rbac.NewEnforcer(ctx, operators)
	if err != nil {
		return nil, err
	}

	tgOpts := []telegram.Option{telegram.WithSendRate(cfg.Broadcast.SendRatePerSec)}
	if cfg.TelegramAPIURL != "" {
		tgOpts = append(tgOpts, telegram.WithBaseURL(cfg.TelegramAPIURL))
	}
	tg := telegram.NewHTTPClient(cfg.BotToken, tgOpts...)
	svc := alert.NewService(cfg, alert.ServiceDeps{
		Subscribers: subscribers,
		Incidents:   incidents,
		Responses:   responses,
		Deliveries:  deliveries,
		Enforcer:    enforcer,
		Telegram:    tg,
		Logger:      logger,
	})

	return &runtimeComposition{
		dispatcher: bot.NewDispatcher(cfg, svc, tg, logger),
		server:     api.NewServer(cfg, svc, db, logger),
		deliveries: deliveries,
	}, nil
}
