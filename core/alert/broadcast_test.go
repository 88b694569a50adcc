package alert

import (
	"context"
	"strings"
	"testing"

	"sokol-alert/core/store"
	"sokol-alert/core/utils"
)

func roster(ids ...int64) []store.Subscriber {
	var out []store.Subscriber
	for _, id := range ids {
		out = append(out, store.Subscriber{UserID: id, IsMember: true})
	}
	return out
}

func TestBroadcastDeliversToEveryMember(t *testing.T) {
	tg := newFakeClient()
	deliveries := &memDeliveries{}
	b := NewBroadcaster(tg, deliveries, 4, utils.NewLogger())
	incident := &store.Incident{ID: 1, Description: "Пожар на складе", Place: "корпус Б"}

	delivered := b.Broadcast(context.Background(), incident, roster(10, 11, 12))
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3", delivered)
	}
	if tg.sentCount() != 3 {
		t.Fatalf("sent = %d, want 3", tg.sentCount())
	}
	log, _ := deliveries.ListByIncident(context.Background(), 1)
	if len(log) != 3 {
		t.Fatalf("delivery log rows = %d, want 3", len(log))
	}
	for _, d := range log {
		if d.Status != store.DeliverySent {
			t.Fatalf("unexpected delivery status %q", d.Status)
		}
		if d.BroadcastID == "" {
			t.Fatalf("delivery row missing broadcast id")
		}
	}
}

func TestBroadcastIsolatesFailedRecipients(t *testing.T) {
	tg := newFakeClient()
	tg.failFor[11] = true
	deliveries := &memDeliveries{}
	b := NewBroadcaster(tg, deliveries, 2, utils.NewLogger())
	incident := &store.Incident{ID: 2, Description: "Потоп"}

	delivered := b.Broadcast(context.Background(), incident, roster(10, 11, 12, 13))
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3 of 4", delivered)
	}
	log, _ := deliveries.ListByIncident(context.Background(), 2)
	var failed int
	for _, d := range log {
		if d.Status == store.DeliveryFailed {
			failed++
			if d.UserID != 11 {
				t.Fatalf("wrong user in failed row: %d", d.UserID)
			}
			if !strings.Contains(d.Error, "blocked") {
				t.Fatalf("failed row should carry the cause, got %q", d.Error)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed rows = %d, want 1", failed)
	}
}

func TestBroadcastUsesPhotoWhenPresent(t *testing.T) {
	tg := newFakeClient()
	b := NewBroadcaster(tg, &memDeliveries{}, 1, utils.NewLogger())
	incident := &store.Incident{ID: 3, Description: "Задымление", PhotoFileID: "file-abc"}

	if got := b.Broadcast(context.Background(), incident, roster(20)); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
	if len(tg.photos) != 1 || len(tg.sent) != 0 {
		t.Fatalf("expected a single photo message, got %d photos %d texts", len(tg.photos), len(tg.sent))
	}
	photo := tg.photos[0]
	if photo.PhotoFileID != "file-abc" {
		t.Fatalf("photo file id = %q", photo.PhotoFileID)
	}
	if photo.ReplyMarkup == nil || len(photo.ReplyMarkup.InlineKeyboard) != 1 {
		t.Fatalf("photo broadcast must carry the response keyboard")
	}
}

func TestBroadcastKeyboardEncodesIncident(t *testing.T) {
	tg := newFakeClient()
	b := NewBroadcaster(tg, &memDeliveries{}, 1, utils.NewLogger())
	incident := &store.Incident{ID: 42, Description: "Авария"}

	b.Broadcast(context.Background(), incident, roster(30))
	if len(tg.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(tg.sent))
	}
	row := tg.sent[0].ReplyMarkup.InlineKeyboard[0]
	if len(row) != 2 {
		t.Fatalf("keyboard row = %d buttons, want 2", len(row))
	}
	if row[0].CallbackData != "go:42" || row[1].CallbackData != "no:42" {
		t.Fatalf("callback data = %q / %q", row[0].CallbackData, row[1].CallbackData)
	}
}

func TestBroadcastEmptyRoster(t *testing.T) {
	tg := newFakeClient()
	b := NewBroadcaster(tg, &memDeliveries{}, 4, utils.NewLogger())
	incident := &store.Incident{ID: 5, Description: "Проверка"}
	if got := b.Broadcast(context.Background(), incident, nil); got != 0 {
		t.Fatalf("delivered = %d, want 0", got)
	}
	if tg.sentCount() != 0 {
		t.Fatalf("nothing should be sent to an empty roster")
	}
}
