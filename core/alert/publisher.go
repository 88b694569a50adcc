package alert

import (
	"context"
	"errors"

	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
)

// Publisher owns the live summary message: posted once per incident,
// edited in place on every subsequent response. A per-incident lock
// serializes publish and refresh so near-simultaneous responses cannot
// race the set-once message binding.
type Publisher struct {
	incidents    store.IncidentsStore
	compiler     *Compiler
	tg           telegram.Client
	logger       logf
	reportChatID int64
	locks        *keyedMutex
}

func NewPublisher(incidents store.IncidentsStore, compiler *Compiler, tg telegram.Client, reportChatID int64, logger logf) *Publisher {
	return &Publisher{
		incidents:    incidents,
		compiler:     compiler,
		tg:           tg,
		logger:       logger,
		reportChatID: reportChatID,
		locks:        newKeyedMutex(),
	}
}

// PublishInitial posts the first live summary and binds its message
// reference to the incident. Failure is recoverable: responses still
// land in the ledger, later refreshes become logged no-ops.
func (p *Publisher) PublishInitial(ctx context.Context, incidentID int64) {
	if p.reportChatID == 0 {
		p.logger.Printf("no report chat configured, skipping live summary for incident %d", incidentID)
		return
	}
	unlock := p.locks.Lock(incidentID)
	defer unlock()
	incident, err := p.incidents.Get(ctx, incidentID)
	if err != nil || incident == nil {
		p.logger.Errorf("publish summary: load incident %d: %v", incidentID, err)
		return
	}
	if incident.HasSummary() {
		p.refreshLocked(ctx, incident)
		return
	}
	rendered, err := p.compiler.CompileLive(ctx, incidentID)
	if err != nil {
		p.logger.Errorf("publish summary: compile incident %d: %v", incidentID, err)
		return
	}
	ref, err := p.tg.SendMessage(ctx, telegram.SendMessageRequest{ChatID: p.reportChatID, Text: rendered})
	if err != nil {
		p.logger.Errorf("publish summary: send incident %d: %v", incidentID, err)
		return
	}
	if err := p.incidents.SetSummaryMessage(ctx, incidentID, ref.ChatID, ref.MessageID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a publish race; the bound message wins, ours is orphaned.
			p.logger.Printf("summary for incident %d already bound, editing existing message", incidentID)
			if incident, err = p.incidents.Get(ctx, incidentID); err == nil && incident != nil {
				p.refreshLocked(ctx, incident)
			}
			return
		}
		p.logger.Errorf("publish summary: bind incident %d: %v", incidentID, err)
	}
}

// Refresh recompiles the live summary from the ledger and edits the
// bound message. Without a binding it is a logged no-op; it never
// retries and never propagates an error to the response path.
func (p *Publisher) Refresh(ctx context.Context, incidentID int64) {
	unlock := p.locks.Lock(incidentID)
	defer unlock()
	incident, err := p.incidents.Get(ctx, incidentID)
	if err != nil || incident == nil {
		metricRefreshFailures.Inc()
		p.logger.Errorf("refresh summary: load incident %d: %v", incidentID, err)
		return
	}
	p.refreshLocked(ctx, incident)
}

func (p *Publisher) refreshLocked(ctx context.Context, incident *store.Incident) {
	if !incident.HasSummary() {
		metricRefreshFailures.Inc()
		p.logger.Printf("incident %d has no bound summary message, skipping refresh", incident.ID)
		return
	}
	rendered, err := p.compiler.CompileLive(ctx, incident.ID)
	if err != nil {
		metricRefreshFailures.Inc()
		p.logger.Errorf("refresh summary: compile incident %d: %v", incident.ID, err)
		return
	}
	err = p.tg.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:    *incident.SummaryChatID,
		MessageID: *incident.SummaryMessageID,
		Text:      rendered,
	})
	if err != nil {
		metricRefreshFailures.Inc()
		p.logger.Errorf("refresh summary: edit incident %d: %v", incident.ID, err)
	}
}
