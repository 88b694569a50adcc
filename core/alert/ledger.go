package alert

import (
	"context"
	"fmt"
	"time"

	"sokol-alert/core/store"
)

// Ledger ingests responses. One row per (incident, subscriber); a
// re-answer overwrites the previous one.
type Ledger struct {
	incidents store.IncidentsStore
	responses store.ResponsesStore
	publisher *Publisher
	logger    logf
}

func NewLedger(incidents store.IncidentsStore, responses store.ResponsesStore, publisher *Publisher, logger logf) *Ledger {
	return &Ledger{
		incidents: incidents,
		responses: responses,
		publisher: publisher,
		logger:    logger,
	}
}

// RecordResponse upserts the subscriber's status for the incident and
// kicks off a summary refresh. The refresh is fire-and-forget: the
// caller's acknowledgement to the responder never waits on it.
func (l *Ledger) RecordResponse(ctx context.Context, incidentID, userID int64, status store.ResponseStatus, lat, lon *float64) error {
	if !status.Valid() {
		return fmt.Errorf("invalid response status %q", status)
	}
	incident, err := l.incidents.Get(ctx, incidentID)
	if err != nil {
		return err
	}
	if incident == nil {
		return store.ErrNotFound
	}
	resp := &store.Response{
		IncidentID: incidentID,
		UserID:     userID,
		Status:     status,
		Lat:        lat,
		Lon:        lon,
	}
	if err := l.responses.Upsert(ctx, resp); err != nil {
		return err
	}
	metricResponses.WithLabelValues(string(status)).Inc()
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		l.publisher.Refresh(refreshCtx, incidentID)
	}()
	return nil
}
