package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Notice struct {
	ID        string    `json:"id"`
	GroupID   int64     `json:"group_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateNotice(ctx context.Context, groupID int64, title, body string) (*Notice, error) {
	n := &Notice{ID: uuid.New().String(), GroupID: groupID, Title: title, Body: body}
	err := s.db.Pool.QueryRow(ctx, `
INSERT INTO notices(id, group_id, title, body)
VALUES ($1,$2,$3,$4)
RETURNING created_at;
`, n.ID, n.GroupID, n.Title, n.Body).Scan(&n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert notice: %w", err)
	}
	return n, nil
}

func (s *Store) ListNoticesForGroup(ctx context.Context, groupID int64, limit int) ([]Notice, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, group_id, title, body, created_at
FROM notices
WHERE group_id=$1
ORDER BY created_at DESC
LIMIT $2
`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notice
	for rows.Next() {
		var n Notice
		if err := rows.Scan(&n.ID, &n.GroupID, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
