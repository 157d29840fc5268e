package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pushgate/pushgate/internal/db"
)

// ErrNoMember is returned when a member id does not exist.
var ErrNoMember = errors.New("member not found")

type Store struct{ db *db.DB }

func New(d *db.DB) *Store { return &Store{db: d} }

// GroupIDForMember is the member-lookup collaborator consumed by the hub:
// it returns the member's current group id, or 0 when the member belongs
// to no group. Unknown members return ErrNoMember.
func (s *Store) GroupIDForMember(ctx context.Context, memberID int64) (int64, error) {
	var groupID *int64
	err := s.db.Pool.QueryRow(ctx, `SELECT group_id FROM members WHERE id=$1`, memberID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("member %d: %w", memberID, ErrNoMember)
		}
		return 0, fmt.Errorf("lookup member group: %w", err)
	}
	if groupID == nil {
		return 0, nil
	}
	return *groupID, nil
}
