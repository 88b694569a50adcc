package alert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sokol-alert/core/store"
	"sokol-alert/core/utils"
)

func publisherFixture(reportChatID int64) (*Publisher, *memIncidents, *memResponses, *memSubscribers, *fakeClient) {
	incidents := newMemIncidents()
	responses := newMemResponses()
	subscribers := newMemSubscribers(
		store.Subscriber{UserID: 10, FirstName: "Анна"},
		store.Subscriber{UserID: 11, FirstName: "Борис"},
	)
	tg := newFakeClient()
	compiler := NewCompiler(subscribers, incidents, responses)
	p := NewPublisher(incidents, compiler, tg, reportChatID, utils.NewLogger())
	return p, incidents, responses, subscribers, tg
}

func TestPublishInitialBindsSummaryMessage(t *testing.T) {
	p, incidents, _, _, tg := publisherFixture(500)
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})

	p.PublishInitial(ctx, id)

	if len(tg.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(tg.sent))
	}
	if tg.sent[0].ChatID != 500 {
		t.Fatalf("summary posted to chat %d, want 500", tg.sent[0].ChatID)
	}
	inc, _ := incidents.Get(ctx, id)
	if !inc.HasSummary() {
		t.Fatalf("summary message reference not bound")
	}
}

func TestPublishInitialSkipsWithoutReportChat(t *testing.T) {
	p, incidents, _, _, tg := publisherFixture(0)
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})

	p.PublishInitial(ctx, id)

	if tg.sentCount() != 0 {
		t.Fatalf("no report chat configured, nothing should be sent")
	}
	inc, _ := incidents.Get(ctx, id)
	if inc.HasSummary() {
		t.Fatalf("binding must not be set without a report chat")
	}
}

func TestPublishInitialSecondCallEditsInsteadOfReposting(t *testing.T) {
	p, incidents, _, _, tg := publisherFixture(500)
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})

	p.PublishInitial(ctx, id)
	p.PublishInitial(ctx, id)

	if len(tg.sent) != 1 {
		t.Fatalf("summary posted %d times, want exactly once", len(tg.sent))
	}
	if len(tg.edits) != 1 {
		t.Fatalf("second publish should edit the bound message, edits = %d", len(tg.edits))
	}
}

func TestRefreshRendersCurrentResponses(t *testing.T) {
	p, incidents, responses, _, tg := publisherFixture(500)
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})
	p.PublishInitial(ctx, id)

	if !strings.Contains(tg.sent[0].Text, "пока никто не откликнулся") {
		t.Fatalf("initial summary must show the empty placeholder, got %q", tg.sent[0].Text)
	}

	_ = responses.Upsert(ctx, &store.Response{IncidentID: id, UserID: 10, Status: store.StatusGoing})
	_ = responses.Upsert(ctx, &store.Response{IncidentID: id, UserID: 11, Status: store.StatusCannot})
	p.Refresh(ctx, id)

	if len(tg.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(tg.edits))
	}
	body := tg.edits[0].Text
	if !strings.Contains(body, "Анна") {
		t.Fatalf("going member missing from summary: %q", body)
	}
	if strings.Contains(body, "Борис") {
		t.Fatalf("CANNOT responder must not appear in the live summary: %q", body)
	}
}

func TestRefreshWithoutBindingIsNoOp(t *testing.T) {
	p, incidents, _, _, tg := publisherFixture(500)
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})

	p.Refresh(ctx, id)

	if tg.sentCount() != 0 || len(tg.edits) != 0 {
		t.Fatalf("refresh without a bound message must not touch the transport")
	}
}

func TestRefreshSwallowsEditFailure(t *testing.T) {
	p, incidents, responses, _, tg := publisherFixture(500)
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})
	p.PublishInitial(ctx, id)

	tg.editErr = errors.New("bad request")
	_ = responses.Upsert(ctx, &store.Response{IncidentID: id, UserID: 10, Status: store.StatusGoing})
	// Must not panic or retry; the response path stays unaffected.
	p.Refresh(ctx, id)
	if len(tg.edits) != 0 {
		t.Fatalf("failed edit recorded anyway: %d", len(tg.edits))
	}
}

func TestSetSummaryMessageIsSetOnce(t *testing.T) {
	incidents := newMemIncidents()
	ctx := context.Background()
	id, _ := incidents.Create(ctx, &store.Incident{Description: "Пожар", CreatedBy: 1})
	if err := incidents.SetSummaryMessage(ctx, id, 500, 7); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := incidents.SetSummaryMessage(ctx, id, 500, 8); err != store.ErrConflict {
		t.Fatalf("second bind = %v, want ErrConflict", err)
	}
}
