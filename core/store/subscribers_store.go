package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Subscriber struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	IsMember  bool      `json:"is_member"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is the identity shown in reports: first name, falling
// back to username, falling back to a dash.
func (s Subscriber) DisplayName() string {
	if name := strings.TrimSpace(s.FirstName); name != "" {
		return name
	}
	if u := strings.TrimSpace(s.Username); u != "" {
		return "@" + u
	}
	return "-"
}

type SubscribersStore interface {
	Upsert(ctx context.Context, sub *Subscriber) error
	Get(ctx context.Context, userID int64) (*Subscriber, error)
	FindByUsername(ctx context.Context, username string) (*Subscriber, error)
	SetMembership(ctx context.Context, userID int64, member bool) error
	ListMembers(ctx context.Context) ([]Subscriber, error)
}

type subscribersStore struct {
	db *DB
}

func NewSubscribersStore(db *DB) SubscribersStore {
	return &subscribersStore{db: db}
}

func (s *subscribersStore) Upsert(ctx context.Context, sub *Subscriber) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers(user_id, username, first_name, last_name, is_member, created_at, updated_at)
		VALUES(?,?,?,?,1,?,?)
		ON CONFLICT (user_id)
		DO UPDATE SET username=excluded.username, first_name=excluded.first_name, last_name=excluded.last_name, is_member=1, updated_at=excluded.updated_at`,
		sub.UserID, strings.TrimSpace(sub.Username), strings.TrimSpace(sub.FirstName), strings.TrimSpace(sub.LastName), now, now)
	if err != nil {
		return err
	}
	sub.IsMember = true
	sub.UpdatedAt = now
	return nil
}

func (s *subscribersStore) Get(ctx context.Context, userID int64) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, first_name, last_name, is_member, created_at, updated_at
		FROM subscribers WHERE user_id=?`, userID)
	return scanSubscriber(row)
}

func (s *subscribersStore) FindByUsername(ctx context.Context, username string) (*Subscriber, error) {
	name := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if name == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, first_name, last_name, is_member, created_at, updated_at
		FROM subscribers WHERE LOWER(username)=LOWER(?)`, name)
	return scanSubscriber(row)
}

func (s *subscribersStore) SetMembership(ctx context.Context, userID int64, member bool) error {
	val := 0
	if member {
		val = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE subscribers SET is_member=?, updated_at=? WHERE user_id=?`,
		val, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *subscribersStore) ListMembers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, first_name, last_name, is_member, created_at, updated_at
		FROM subscribers WHERE is_member=1 ORDER BY created_at ASC, user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Subscriber
	for rows.Next() {
		var sub Subscriber
		var member int
		if err := rows.Scan(&sub.UserID, &sub.Username, &sub.FirstName, &sub.LastName, &member, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		sub.IsMember = member == 1
		res = append(res, sub)
	}
	return res, rows.Err()
}

func scanSubscriber(row *sql.Row) (*Subscriber, error) {
	var sub Subscriber
	var member int
	if err := row.Scan(&sub.UserID, &sub.Username, &sub.FirstName, &sub.LastName, &member, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sub.IsMember = member == 1
	return &sub, nil
}
