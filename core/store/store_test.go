package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sokol-alert/config"
	"sokol-alert/core/utils"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.AppConfig{DBPath: filepath.Join(t.TempDir(), "sokol_test.db")}
	logger := utils.NewLogger()
	db, err := NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSubscribersUpsertAndMembership(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	subs := NewSubscribersStore(db)

	sub := &Subscriber{UserID: 10, Username: "anna", FirstName: "Анна"}
	if err := subs.Upsert(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Re-subscribe with fresh identity must update in place.
	if err := subs.Upsert(ctx, &Subscriber{UserID: 10, Username: "anna_new", FirstName: "Анна"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := subs.Get(ctx, 10)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Username != "anna_new" || !got.IsMember {
		t.Fatalf("unexpected subscriber %+v", got)
	}

	if err := subs.SetMembership(ctx, 10, false); err != nil {
		t.Fatalf("set membership: %v", err)
	}
	members, err := subs.ListMembers(ctx)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("unsubscribed user still listed: %+v", members)
	}
	if err := subs.SetMembership(ctx, 99, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("membership for unknown user = %v, want ErrNotFound", err)
	}
}

func TestSubscribersFindByUsername(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	subs := NewSubscribersStore(db)
	_ = subs.Upsert(ctx, &Subscriber{UserID: 10, Username: "Anna"})

	got, err := subs.FindByUsername(ctx, "@anna")
	if err != nil || got == nil {
		t.Fatalf("lookup must strip @ and ignore case: %v %v", got, err)
	}
	if got.UserID != 10 {
		t.Fatalf("wrong subscriber %+v", got)
	}
	if got, _ := subs.FindByUsername(ctx, "nobody"); got != nil {
		t.Fatalf("unknown username must return nil, got %+v", got)
	}
}

func TestIncidentsCreateAndSummaryBinding(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	incidents := NewIncidentsStore(db)

	if _, err := incidents.Create(ctx, &Incident{Description: "   ", CreatedBy: 1}); err == nil {
		t.Fatalf("empty description must be rejected")
	}

	id, err := incidents.Create(ctx, &Incident{Description: "Пожар", Place: "корпус Б", CreatedBy: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inc, err := incidents.Get(ctx, id)
	if err != nil || inc == nil {
		t.Fatalf("get: %v %v", inc, err)
	}
	if inc.HasSummary() {
		t.Fatalf("fresh incident must have no summary binding")
	}

	if err := incidents.SetSummaryMessage(ctx, id, 500, 7); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := incidents.SetSummaryMessage(ctx, id, 500, 8); !errors.Is(err, ErrConflict) {
		t.Fatalf("second bind = %v, want ErrConflict", err)
	}
	if err := incidents.SetSummaryMessage(ctx, 999, 500, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bind unknown incident = %v, want ErrNotFound", err)
	}

	inc, _ = incidents.Get(ctx, id)
	if inc.SummaryMessageID == nil || *inc.SummaryMessageID != 7 {
		t.Fatalf("first binding must win: %+v", inc)
	}
}

func TestIncidentsListRecentOrder(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	incidents := NewIncidentsStore(db)
	for _, desc := range []string{"первое", "второе", "третье"} {
		if _, err := incidents.Create(ctx, &Incident{Description: desc, CreatedBy: 1}); err != nil {
			t.Fatalf("create %q: %v", desc, err)
		}
	}
	recent, err := incidents.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].Description != "третье" {
		t.Fatalf("want newest first, limited: %+v", recent)
	}
	last, err := incidents.GetLast(ctx)
	if err != nil || last == nil || last.Description != "третье" {
		t.Fatalf("get last: %+v %v", last, err)
	}
}

func TestResponsesUpsertOverwrites(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	incidents := NewIncidentsStore(db)
	responses := NewResponsesStore(db)
	id, _ := incidents.Create(ctx, &Incident{Description: "Пожар", CreatedBy: 1})

	if err := responses.Upsert(ctx, &Response{IncidentID: id, UserID: 10, Status: StatusGoing}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	lat, lon := 55.75, 37.61
	if err := responses.Upsert(ctx, &Response{IncidentID: id, UserID: 10, Status: StatusCannot, Lat: &lat, Lon: &lon}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	list, err := responses.ListByIncident(ctx, id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("rows = %d, want one per (incident,user)", len(list))
	}
	if list[0].Status != StatusCannot || list[0].Lat == nil || *list[0].Lat != lat {
		t.Fatalf("later answer must win with its payload: %+v", list[0])
	}
	if n, _ := responses.CountByIncident(ctx, id); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestOperatorsGrantRevoke(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	operators := NewOperatorsStore(db)

	if err := operators.Grant(ctx, 10, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Granting twice is a no-op, not an error.
	if err := operators.Grant(ctx, 10, 1); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	ok, err := operators.IsOperator(ctx, 10)
	if err != nil || !ok {
		t.Fatalf("is operator: %v %v", ok, err)
	}
	list, _ := operators.List(ctx)
	if len(list) != 1 {
		t.Fatalf("operators = %d, want 1", len(list))
	}
	if err := operators.Revoke(ctx, 10); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := operators.IsOperator(ctx, 10); ok {
		t.Fatalf("revoked operator still active")
	}
	if err := operators.Revoke(ctx, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke = %v, want ErrNotFound", err)
	}
}

func TestDeliveriesPurge(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	deliveries := NewDeliveriesStore(db)

	_ = deliveries.Add(ctx, &Delivery{BroadcastID: "b1", IncidentID: 1, UserID: 10, Status: DeliverySent})
	_ = deliveries.Add(ctx, &Delivery{BroadcastID: "b1", IncidentID: 1, UserID: 11, Status: DeliveryFailed, Error: "blocked"})

	log, err := deliveries.ListByIncident(ctx, 1)
	if err != nil || len(log) != 2 {
		t.Fatalf("list: %d rows, err %v", len(log), err)
	}

	purged, err := deliveries.PurgeOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil || purged != 0 {
		t.Fatalf("nothing is old enough yet: purged=%d err=%v", purged, err)
	}
	purged, err = deliveries.PurgeOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil || purged != 2 {
		t.Fatalf("purge all: purged=%d err=%v", purged, err)
	}
	if log, _ := deliveries.ListByIncident(ctx, 1); len(log) != 0 {
		t.Fatalf("rows survive purge: %+v", log)
	}
}
