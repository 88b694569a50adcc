package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Operator struct {
	UserID    int64     `json:"user_id"`
	GrantedBy int64     `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

type OperatorsStore interface {
	Grant(ctx context.Context, userID, grantedBy int64) error
	Revoke(ctx context.Context, userID int64) error
	IsOperator(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context) ([]Operator, error)
}

type operatorsStore struct {
	db *DB
}

func NewOperatorsStore(db *DB) OperatorsStore {
	return &operatorsStore{db: db}
}

func (s *operatorsStore) Grant(ctx context.Context, userID, grantedBy int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators(user_id, granted_by, granted_at)
		VALUES(?,?,?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, grantedBy, time.Now().UTC())
	return err
}

func (s *operatorsStore) Revoke(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operators WHERE user_id=?`, userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *operatorsStore) IsOperator(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM operators WHERE user_id=?`, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *operatorsStore) List(ctx context.Context) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, granted_by, granted_at FROM operators ORDER BY granted_at ASC, user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Operator
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.UserID, &op.GrantedBy, &op.GrantedAt); err != nil {
			return nil, err
		}
		res = append(res, op)
	}
	return res, rows.Err()
}
