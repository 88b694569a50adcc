package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
)

// fakeClient records every call. failFor holds chat ids whose sends
// must fail, to exercise per-recipient isolation.
type fakeClient struct {
	mu      sync.Mutex
	sent    []telegram.SendMessageRequest
	photos  []telegram.SendPhotoRequest
	edits   []telegram.EditMessageTextRequest
	failFor map[int64]bool
	editErr error
	nextMsg int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{failFor: map[int64]bool{}}
}

func (c *fakeClient) SendMessage(_ context.Context, req telegram.SendMessageRequest) (telegram.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[req.ChatID] {
		return telegram.MessageRef{}, fmt.Errorf("forbidden: bot was blocked by the user")
	}
	c.sent = append(c.sent, req)
	c.nextMsg++
	return telegram.MessageRef{ChatID: req.ChatID, MessageID: c.nextMsg}, nil
}

func (c *fakeClient) SendPhoto(_ context.Context, req telegram.SendPhotoRequest) (telegram.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[req.ChatID] {
		return telegram.MessageRef{}, fmt.Errorf("forbidden: bot was blocked by the user")
	}
	c.photos = append(c.photos, req)
	c.nextMsg++
	return telegram.MessageRef{ChatID: req.ChatID, MessageID: c.nextMsg}, nil
}

func (c *fakeClient) EditMessageText(_ context.Context, req telegram.EditMessageTextRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return c.editErr
	}
	c.edits = append(c.edits, req)
	return nil
}

func (c *fakeClient) EditMessageCaption(_ context.Context, _ telegram.EditMessageCaptionRequest) error {
	return nil
}

func (c *fakeClient) AnswerCallbackQuery(_ context.Context, _, _ string) error {
	return nil
}

func (c *fakeClient) GetChatAdministrators(_ context.Context, _ int64) ([]telegram.ChatMember, error) {
	return nil, nil
}

func (c *fakeClient) GetUpdates(_ context.Context, _ int64, _ int) ([]telegram.Update, error) {
	return nil, nil
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent) + len(c.photos)
}

type memIncidents struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*store.Incident
}

func newMemIncidents() *memIncidents {
	return &memIncidents{items: map[int64]*store.Incident{}}
}

func (m *memIncidents) Create(_ context.Context, incident *store.Incident) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *incident
	cp.ID = m.nextID
	cp.CreatedAt = time.Now().UTC()
	m.items[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memIncidents) Get(_ context.Context, id int64) (*store.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *inc
	return &cp, nil
}

func (m *memIncidents) GetLast(_ context.Context) (*store.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *store.Incident
	for _, inc := range m.items {
		if last == nil || inc.ID > last.ID {
			last = inc
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (m *memIncidents) ListRecent(_ context.Context, limit int) ([]store.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Incident
	for id := m.nextID; id > 0 && len(out) < limit; id-- {
		if inc, ok := m.items[id]; ok {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (m *memIncidents) SetSummaryMessage(_ context.Context, id, chatID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	if inc.SummaryMessageID != nil {
		return store.ErrConflict
	}
	inc.SummaryChatID = &chatID
	inc.SummaryMessageID = &messageID
	return nil
}

type memResponses struct {
	mu    sync.Mutex
	order []string
	items map[string]*store.Response
}

func newMemResponses() *memResponses {
	return &memResponses{items: map[string]*store.Response{}}
}

func respKey(incidentID, userID int64) string {
	return fmt.Sprintf("%d/%d", incidentID, userID)
}

func (m *memResponses) Upsert(_ context.Context, resp *store.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := respKey(resp.IncidentID, resp.UserID)
	cp := *resp
	cp.UpdatedAt = time.Now().UTC()
	if _, ok := m.items[k]; !ok {
		m.order = append(m.order, k)
	}
	m.items[k] = &cp
	return nil
}

func (m *memResponses) ListByIncident(_ context.Context, incidentID int64) ([]store.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Response
	for _, k := range m.order {
		if r := m.items[k]; r.IncidentID == incidentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memResponses) CountByIncident(_ context.Context, incidentID int64) (int, error) {
	list, _ := m.ListByIncident(context.Background(), incidentID)
	return len(list), nil
}

type memSubscribers struct {
	mu    sync.Mutex
	order []int64
	items map[int64]*store.Subscriber
}

func newMemSubscribers(subs ...store.Subscriber) *memSubscribers {
	m := &memSubscribers{items: map[int64]*store.Subscriber{}}
	for i := range subs {
		subs[i].IsMember = true
		m.order = append(m.order, subs[i].UserID)
		cp := subs[i]
		m.items[cp.UserID] = &cp
	}
	return m
}

func (m *memSubscribers) Upsert(_ context.Context, sub *store.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	cp.IsMember = true
	if _, ok := m.items[cp.UserID]; !ok {
		m.order = append(m.order, cp.UserID)
	}
	m.items[cp.UserID] = &cp
	return nil
}

func (m *memSubscribers) Get(_ context.Context, userID int64) (*store.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.items[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (m *memSubscribers) FindByUsername(_ context.Context, username string) (*store.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if m.items[id].Username == username {
			cp := *m.items[id]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSubscribers) SetMembership(_ context.Context, userID int64, member bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.items[userID]
	if !ok {
		return store.ErrNotFound
	}
	sub.IsMember = member
	return nil
}

func (m *memSubscribers) ListMembers(_ context.Context) ([]store.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Subscriber
	for _, id := range m.order {
		if m.items[id].IsMember {
			out = append(out, *m.items[id])
		}
	}
	return out, nil
}

type memDeliveries struct {
	mu    sync.Mutex
	items []store.Delivery
}

func (m *memDeliveries) Add(_ context.Context, d *store.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.CreatedAt = time.Now().UTC()
	m.items = append(m.items, cp)
	return nil
}

func (m *memDeliveries) ListByIncident(_ context.Context, incidentID int64) ([]store.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Delivery
	for _, d := range m.items {
		if d.IncidentID == incidentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDeliveries) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []store.Delivery
	var purged int64
	for _, d := range m.items {
		if d.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, d)
	}
	m.items = kept
	return purged, nil
}
