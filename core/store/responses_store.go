package store

import (
	"context"
	"database/sql"
	"time"
)

type ResponseStatus string

const (
	StatusGoing  ResponseStatus = "going"
	StatusCannot ResponseStatus = "cannot"
)

func (s ResponseStatus) Valid() bool {
	switch s {
	case StatusGoing, StatusCannot:
		return true
	}
	return false
}

type Response struct {
	IncidentID int64          `json:"incident_id"`
	UserID     int64          `json:"user_id"`
	Status     ResponseStatus `json:"status"`
	Lat        *float64       `json:"lat,omitempty"`
	Lon        *float64       `json:"lon,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type ResponsesStore interface {
	// Upsert records one response per (incident, user); a later write
	// for the same pair overwrites the earlier one.
	Upsert(ctx context.Context, resp *Response) error
	ListByIncident(ctx context.Context, incidentID int64) ([]Response, error)
	CountByIncident(ctx context.Context, incidentID int64) (int, error)
}

type responsesStore struct {
	db *DB
}

func NewResponsesStore(db *DB) ResponsesStore {
	return &responsesStore{db: db}
}

func (s *responsesStore) Upsert(ctx context.Context, resp *Response) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses(incident_id, user_id, status, lat, lon, updated_at)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT (incident_id, user_id)
		DO UPDATE SET status=excluded.status, lat=excluded.lat, lon=excluded.lon, updated_at=excluded.updated_at`,
		resp.IncidentID, resp.UserID, string(resp.Status), nullableFloat(resp.Lat), nullableFloat(resp.Lon), now)
	if err != nil {
		return err
	}
	resp.UpdatedAt = now
	return nil
}

func (s *responsesStore) ListByIncident(ctx context.Context, incidentID int64) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_id, user_id, status, lat, lon, updated_at
		FROM responses WHERE incident_id=? ORDER BY updated_at ASC, user_id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Response
	for rows.Next() {
		var r Response
		var status string
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&r.IncidentID, &r.UserID, &status, &lat, &lon, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = ResponseStatus(status)
		if lat.Valid {
			r.Lat = &lat.Float64
		}
		if lon.Valid {
			r.Lon = &lon.Float64
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *responsesStore) CountByIncident(ctx context.Context, incidentID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE incident_id=?`, incidentID).Scan(&n)
	return n, err
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
