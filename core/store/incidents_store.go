package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Incident struct {
	ID               int64     `json:"id"`
	Description      string    `json:"description"`
	Place            string    `json:"place,omitempty"`
	PhotoFileID      string    `json:"photo_file_id,omitempty"`
	SummaryChatID    *int64    `json:"summary_chat_id,omitempty"`
	SummaryMessageID *int64    `json:"summary_message_id,omitempty"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

func (i *Incident) HasSummary() bool {
	return i != nil && i.SummaryChatID != nil && i.SummaryMessageID != nil
}

type IncidentsStore interface {
	Create(ctx context.Context, incident *Incident) (int64, error)
	Get(ctx context.Context, id int64) (*Incident, error)
	GetLast(ctx context.Context) (*Incident, error)
	ListRecent(ctx context.Context, limit int) ([]Incident, error)
	// SetSummaryMessage binds the live summary message reference.
	// The binding is set exactly once; a second call returns ErrConflict.
	SetSummaryMessage(ctx context.Context, id, chatID, messageID int64) error
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

func (s *incidentsStore) Create(ctx context.Context, incident *Incident) (int64, error) {
	if strings.TrimSpace(incident.Description) == "" {
		return 0, errors.New("incident description is empty")
	}
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents(description, place, photo_file_id, summary_chat_id, summary_message_id, created_by, created_at)
		VALUES(?,?,?,NULL,NULL,?,?)
		RETURNING id`,
		strings.TrimSpace(incident.Description), strings.TrimSpace(incident.Place), strings.TrimSpace(incident.PhotoFileID), incident.CreatedBy, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	incident.ID = id
	incident.CreatedAt = now
	return id, nil
}

func (s *incidentsStore) Get(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, place, photo_file_id, summary_chat_id, summary_message_id, created_by, created_at
		FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) GetLast(ctx context.Context) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, place, photo_file_id, summary_chat_id, summary_message_id, created_by, created_at
		FROM incidents ORDER BY id DESC LIMIT 1`)
	return scanIncident(row)
}

func (s *incidentsStore) ListRecent(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, place, photo_file_id, summary_chat_id, summary_message_id, created_by, created_at
		FROM incidents ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		var inc Incident
		var chatID, messageID sql.NullInt64
		if err := rows.Scan(&inc.ID, &inc.Description, &inc.Place, &inc.PhotoFileID, &chatID, &messageID, &inc.CreatedBy, &inc.CreatedAt); err != nil {
			return nil, err
		}
		if chatID.Valid {
			inc.SummaryChatID = &chatID.Int64
		}
		if messageID.Valid {
			inc.SummaryMessageID = &messageID.Int64
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) SetSummaryMessage(ctx context.Context, id, chatID, messageID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET summary_chat_id=?, summary_message_id=?
		WHERE id=? AND summary_message_id IS NULL`,
		chatID, messageID, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var inc Incident
	var chatID, messageID sql.NullInt64
	if err := row.Scan(&inc.ID, &inc.Description, &inc.Place, &inc.PhotoFileID, &chatID, &messageID, &inc.CreatedBy, &inc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if chatID.Valid {
		inc.SummaryChatID = &chatID.Int64
	}
	if messageID.Valid {
		inc.SummaryMessageID = &messageID.Int64
	}
	return &inc, nil
}
