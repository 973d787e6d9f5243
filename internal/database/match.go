// internal/database/match.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seungho-lim/numrace/internal/models"
)

const matchColumns = `id, room_id, round_type, target_number, optimal_cost, status,
       deadline, started_at, finished_at, winning_submission_id, round_number,
       metadata_snapshot, created_at`

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	meta, err := marshalMetadata(m.Metadata)
	if err != nil {
		return err
	}
	q := `INSERT INTO matches (` + matchColumns + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.Pool.Exec(ctx, q,
		m.ID, m.RoomID, m.RoundType, m.TargetNumber, m.OptimalCost, m.Status,
		m.Deadline, m.StartedAt, m.FinishedAt, m.WinningSubmissionID, m.RoundNumber,
		meta, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *Store) UpdateMatch(ctx context.Context, m *models.Match) error {
	meta, err := marshalMetadata(m.Metadata)
	if err != nil {
		return err
	}
	q := `UPDATE matches
	      SET target_number=$2, optimal_cost=$3, status=$4, deadline=$5,
	          finished_at=$6, winning_submission_id=$7, metadata_snapshot=$8
	      WHERE id=$1`
	_, err = s.Pool.Exec(ctx, q,
		m.ID, m.TargetNumber, m.OptimalCost, m.Status, m.Deadline,
		m.FinishedAt, m.WinningSubmissionID, meta,
	)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

func (s *Store) GetActiveMatch(ctx context.Context, roomID uuid.UUID) (*models.Match, error) {
	q := `SELECT ` + matchColumns + `
	      FROM matches
	      WHERE room_id=$1 AND status=$2
	      ORDER BY created_at DESC
	      LIMIT 1`
	row := s.Pool.QueryRow(ctx, q, roomID, models.MatchActive)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches WHERE id=$1`
	m, err := scanMatch(s.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *Store) ListExpiredActive(ctx context.Context, now time.Time) ([]*models.Match, error) {
	q := `SELECT ` + matchColumns + `
	      FROM matches
	      WHERE status=$1 AND deadline IS NOT NULL AND deadline <= $2
	      ORDER BY deadline`
	rows, err := s.Pool.Query(ctx, q, models.MatchActive, now)
	if err != nil {
		return nil, fmt.Errorf("list expired matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func marshalMetadata(meta *models.MatchMetadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal match metadata: %w", err)
	}
	return data, nil
}

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	var meta []byte
	err := row.Scan(
		&m.ID, &m.RoomID, &m.RoundType, &m.TargetNumber, &m.OptimalCost, &m.Status,
		&m.Deadline, &m.StartedAt, &m.FinishedAt, &m.WinningSubmissionID, &m.RoundNumber,
		&meta, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		m.Metadata = &models.MatchMetadata{}
		if err := json.Unmarshal(meta, m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal match metadata: %w", err)
		}
	}
	return &m, nil
}
