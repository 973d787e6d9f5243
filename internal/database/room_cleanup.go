// internal/database/room_cleanup.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seungho-lim/numrace/internal/models"
)

// DeleteEmptyRooms removes non-archived rooms that have no participants
// left, along with their matches and submissions. Returns the ids of the
// removed rooms so the caller can announce room_closed to any lingering
// observers.
func (s *Store) DeleteEmptyRooms(ctx context.Context) ([]uuid.UUID, error) {
	q := `SELECT id FROM rooms
	      WHERE status != $1
	        AND id NOT IN (SELECT DISTINCT room_id FROM room_participants)`
	ids, err := s.collectRoomIDs(ctx, q, models.RoomArchived)
	if err != nil {
		return nil, err
	}
	return ids, s.deleteRooms(ctx, ids)
}

// DeleteIdleRooms removes WAITING rooms created before cutoff that never
// started a match.
func (s *Store) DeleteIdleRooms(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	q := `SELECT r.id FROM rooms r
	      WHERE r.status = $1
	        AND r.created_at < $2
	        AND NOT EXISTS (
	            SELECT 1 FROM matches m WHERE m.room_id = r.id AND m.status = $3
	        )`
	ids, err := s.collectRoomIDs(ctx, q, models.RoomWaiting, cutoff, models.MatchActive)
	if err != nil {
		return nil, err
	}
	return ids, s.deleteRooms(ctx, ids)
}

func (s *Store) collectRoomIDs(ctx context.Context, q string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select cleanup rooms: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) deleteRooms(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Winning-submission references must be dropped before the
		// submissions themselves.
		steps := []string{
			`UPDATE matches SET winning_submission_id = NULL WHERE room_id = ANY($1)`,
			`DELETE FROM submissions WHERE match_id IN (SELECT id FROM matches WHERE room_id = ANY($1))`,
			`DELETE FROM matches WHERE room_id = ANY($1)`,
			`DELETE FROM room_participants WHERE room_id = ANY($1)`,
			`DELETE FROM rooms WHERE id = ANY($1)`,
		}
		for _, step := range steps {
			if _, err := tx.Exec(ctx, step, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete rooms: %w", err)
	}
	return nil
}
