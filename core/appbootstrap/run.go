package appbootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"sokol-alert/config"
	"sokol-alert/core/store"
	"sokol-alert/core/utils"
)

// Run composes the runtime and blocks until the context is cancelled.
// It owns the three long-lived pieces: the long-poll dispatcher, the
// optional ops API listener and the delivery-log retention job.
func Run(ctx context.Context, cfg *config.AppConfig, db *store.DB, logger *utils.Logger) error {
	comp, err := composeRuntime(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	scheduler := cron.New()
	if cfg.Retention.DeliveryDays > 0 {
		_, err = scheduler.AddFunc(cfg.Retention.Schedule, func() {
			purgeDeliveries(cfg, comp.deliveries, logger)
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	errCh := make(chan error, 2)
	go func() { errCh <- comp.server.Run(ctx) }()
	go func() { errCh <- comp.dispatcher.Run(ctx) }()

	err = <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func purgeDeliveries(cfg *config.AppConfig, deliveries store.DeliveriesStore, logger *utils.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := time.Now().AddDate(0, 0, -cfg.Retention.DeliveryDays)
	purged, err := deliveries.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		logger.Errorf("purge delivery log: %v", err)
		return
	}
	if purged > 0 {
		logger.Printf("purged %d delivery records older than %s", purged, cutoff.Format("2006-01-02"))
	}
}
