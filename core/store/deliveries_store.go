package store

import (
	"context"
	"strings"
	"time"
)

// Delivery is one per-recipient broadcast attempt. Rows are an audit
// trail only; nothing in the engine reads them back on the hot path.
type Delivery struct {
	ID          int64     `json:"id"`
	BroadcastID string    `json:"broadcast_id"`
	IncidentID  int64     `json:"incident_id"`
	UserID      int64     `json:"user_id"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

type DeliveriesStore interface {
	Add(ctx context.Context, d *Delivery) error
	ListByIncident(ctx context.Context, incidentID int64) ([]Delivery, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type deliveriesStore struct {
	db *DB
}

func NewDeliveriesStore(db *DB) DeliveriesStore {
	return &deliveriesStore{db: db}
}

func (s *deliveriesStore) Add(ctx context.Context, d *Delivery) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries(broadcast_id, incident_id, user_id, status, error, created_at)
		VALUES(?,?,?,?,?,?)`,
		strings.TrimSpace(d.BroadcastID), d.IncidentID, d.UserID, d.Status, strings.TrimSpace(d.Error), now)
	if err != nil {
		return err
	}
	d.CreatedAt = now
	return nil
}

func (s *deliveriesStore) ListByIncident(ctx context.Context, incidentID int64) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, broadcast_id, incident_id, user_id, status, error, created_at
		FROM deliveries WHERE incident_id=? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.BroadcastID, &d.IncidentID, &d.UserID, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s *deliveriesStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
