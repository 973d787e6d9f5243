// internal/database/room.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seungho-lim/numrace/internal/models"
)

const roomColumns = `id, code, name, COALESCE(description, ''), host_id, status,
       current_round, round_type, max_players, player_one_id, player_two_id,
       created_at, updated_at`

func (s *Store) CreateRoom(ctx context.Context, room *models.Room, host *models.RoomParticipant) error {
	err := pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `INSERT INTO rooms (id, code, name, description, host_id, status,
		          current_round, round_type, max_players, player_one_id, player_two_id,
		          created_at, updated_at)
		      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
		if _, err := tx.Exec(ctx, q,
			room.ID, room.Code, room.Name, nullableString(room.Description), room.HostID,
			room.Status, room.CurrentRound, room.RoundType, room.MaxPlayers,
			room.PlayerOneID, room.PlayerTwoID, room.CreatedAt, room.UpdatedAt,
		); err != nil {
			return err
		}
		return insertParticipant(ctx, tx, host)
	})
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id=$1`
	room, err := scanRoom(s.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE code=$1`
	room, err := scanRoom(s.Pool.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

func (s *Store) ListActiveRooms(ctx context.Context) ([]*models.Room, error) {
	q := `SELECT ` + roomColumns + `
	      FROM rooms
	      WHERE status != $1
	      ORDER BY created_at DESC`
	rows, err := s.Pool.Query(ctx, q, models.RoomArchived)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *Store) SetRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error {
	q := `UPDATE rooms SET status=$2, updated_at=$3 WHERE id=$1`
	if _, err := s.Pool.Exec(ctx, q, roomID, status, time.Now()); err != nil {
		return fmt.Errorf("set room status: %w", err)
	}
	return nil
}

// AssignPlayerSlot writes back a room's player slot columns after a join
// promoted a participant to a player seat.
func (s *Store) AssignPlayerSlot(ctx context.Context, room *models.Room) error {
	q := `UPDATE rooms SET player_one_id=$2, player_two_id=$3, updated_at=$4 WHERE id=$1`
	if _, err := s.Pool.Exec(ctx, q, room.ID, room.PlayerOneID, room.PlayerTwoID, time.Now()); err != nil {
		return fmt.Errorf("assign player slot: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, roomID, userID uuid.UUID) (*models.RoomParticipant, error) {
	q := `SELECT id, room_id, user_id, COALESCE(team_label, ''), is_ready, role, joined_at
	      FROM room_participants WHERE room_id=$1 AND user_id=$2`
	var p models.RoomParticipant
	err := s.Pool.QueryRow(ctx, q, roomID, userID).Scan(
		&p.ID, &p.RoomID, &p.UserID, &p.TeamLabel, &p.IsReady, &p.Role, &p.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*models.RoomParticipant, error) {
	q := `SELECT id, room_id, user_id, COALESCE(team_label, ''), is_ready, role, joined_at
	      FROM room_participants WHERE room_id=$1 ORDER BY joined_at`
	rows, err := s.Pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []*models.RoomParticipant
	for rows.Next() {
		var p models.RoomParticipant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.TeamLabel, &p.IsReady, &p.Role, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) CountParticipants(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM room_participants WHERE room_id=$1`, roomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p *models.RoomParticipant) error {
	err := pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return insertParticipant(ctx, tx, p)
	})
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func insertParticipant(ctx context.Context, tx pgx.Tx, p *models.RoomParticipant) error {
	q := `INSERT INTO room_participants (id, room_id, user_id, team_label, is_ready, role, joined_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := tx.Exec(ctx, q,
		p.ID, p.RoomID, p.UserID, nullableString(p.TeamLabel), p.IsReady, p.Role, p.JoinedAt,
	)
	return err
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(
		&r.ID, &r.Code, &r.Name, &r.Description, &r.HostID, &r.Status,
		&r.CurrentRound, &r.RoundType, &r.MaxPlayers, &r.PlayerOneID, &r.PlayerTwoID,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
