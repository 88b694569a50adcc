package alert

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"

	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
)

// Broadcaster fans an incident out to the roster. One failed recipient
// never aborts the rest; every attempt lands in the delivery log.
type Broadcaster struct {
	tg          telegram.Client
	deliveries  store.DeliveriesStore
	logger      logf
	concurrency int
	lang        string
}

type logf interface {
	Printf(format string, args ...any)
	Errorf(format string, args ...any)
}

func NewBroadcaster(tg telegram.Client, deliveries store.DeliveriesStore, concurrency int, logger logf) *Broadcaster {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Broadcaster{
		tg:          tg,
		deliveries:  deliveries,
		logger:      logger,
		concurrency: concurrency,
		lang:        "ru",
	}
}

func callbackGoing(incidentID int64) string {
	return fmt.Sprintf("go:%d", incidentID)
}

func callbackCannot(incidentID int64) string {
	return fmt.Sprintf("no:%d", incidentID)
}

func (b *Broadcaster) keyboard(incidentID int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: text(b.lang, "alert.btn.going"), CallbackData: callbackGoing(incidentID)},
			{Text: text(b.lang, "alert.btn.cannot"), CallbackData: callbackCannot(incidentID)},
		}},
	}
}

func renderBroadcast(lang string, incident *store.Incident) string {
	lines := []string{text(lang, "alert.notify.header"), strings.TrimSpace(incident.Description)}
	if strings.TrimSpace(incident.Place) != "" {
		lines = append(lines, fmt.Sprintf("%s: %s", text(lang, "alert.notify.place"), strings.TrimSpace(incident.Place)))
	}
	return strings.Join(lines, "\n")
}

// Broadcast attempts delivery to every roster member and returns how
// many sends succeeded. The roster is the caller's snapshot; members
// joining mid-broadcast are not picked up.
func (b *Broadcaster) Broadcast(ctx context.Context, incident *store.Incident, roster []store.Subscriber) int {
	body := renderBroadcast(b.lang, incident)
	markup := b.keyboard(incident.ID)
	broadcastID := ""
	if id, err := uuid.NewV4(); err == nil {
		broadcastID = id.String()
	}
	var delivered int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, sub := range roster {
		sub := sub
		g.Go(func() error {
			err := b.deliverOne(gctx, incident, sub.UserID, body, markup)
			if err != nil {
				b.logger.Errorf("broadcast incident %d to user %d: %v", incident.ID, sub.UserID, err)
				metricDeliveries.WithLabelValues(store.DeliveryFailed).Inc()
				b.logDelivery(gctx, broadcastID, incident.ID, sub.UserID, store.DeliveryFailed, err)
				return nil
			}
			atomic.AddInt64(&delivered, 1)
			metricDeliveries.WithLabelValues(store.DeliverySent).Inc()
			b.logDelivery(gctx, broadcastID, incident.ID, sub.UserID, store.DeliverySent, nil)
			return nil
		})
	}
	_ = g.Wait()
	b.logger.Printf("broadcast incident %d delivered to %d/%d members", incident.ID, delivered, len(roster))
	return int(delivered)
}

func (b *Broadcaster) deliverOne(ctx context.Context, incident *store.Incident, userID int64, body string, markup *telegram.InlineKeyboardMarkup) error {
	if incident.PhotoFileID != "" {
		_, err := b.tg.SendPhoto(ctx, telegram.SendPhotoRequest{
			ChatID:      userID,
			PhotoFileID: incident.PhotoFileID,
			Caption:     body,
			ReplyMarkup: markup,
		})
		return err
	}
	_, err := b.tg.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      userID,
		Text:        body,
		ReplyMarkup: markup,
	})
	return err
}

func (b *Broadcaster) logDelivery(ctx context.Context, broadcastID string, incidentID, userID int64, status string, cause error) {
	d := &store.Delivery{
		BroadcastID: broadcastID,
		IncidentID:  incidentID,
		UserID:      userID,
		Status:      status,
	}
	if cause != nil {
		d.Error = cause.Error()
	}
	if err := b.deliveries.Add(ctx, d); err != nil {
		b.logger.Errorf("delivery log incident %d user %d: %v", incidentID, userID, err)
	}
}
