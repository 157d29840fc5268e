package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Alarm struct {
	ID        string    `json:"id"`
	MemberID  int64     `json:"member_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateAlarm(ctx context.Context, memberID int64, kind, message string) (*Alarm, error) {
	a := &Alarm{ID: uuid.New().String(), MemberID: memberID, Kind: kind, Message: message}
	err := s.db.Pool.QueryRow(ctx, `
INSERT INTO alarms(id, member_id, kind, message)
VALUES ($1,$2,$3,$4)
RETURNING created_at;
`, a.ID, a.MemberID, a.Kind, a.Message).Scan(&a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert alarm: %w", err)
	}
	return a, nil
}

func (s *Store) ListAlarmsForMember(ctx context.Context, memberID int64, limit int) ([]Alarm, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, member_id, kind, message, read, created_at
FROM alarms
WHERE member_id=$1
ORDER BY created_at DESC
LIMIT $2
`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Alarm
	for rows.Next() {
		var a Alarm
		if err := rows.Scan(&a.ID, &a.MemberID, &a.Kind, &a.Message, &a.Read, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAlarmRead flips the read flag; scoped to the owning member so one
// user cannot ack another's alarms.
func (s *Store) MarkAlarmRead(ctx context.Context, memberID int64, alarmID string) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE alarms SET read=true WHERE id=$1 AND member_id=$2`, alarmID, memberID)
	if err != nil {
		return fmt.Errorf("mark alarm read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alarm %s for member %d: not found", alarmID, memberID)
	}
	return nil
}
