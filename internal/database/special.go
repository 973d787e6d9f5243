// internal/database/special.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seungho-lim/numrace/internal/models"
)

// GetSpecialConfig loads the single special-mode configuration row, or nil
// when none is set.
func (s *Store) GetSpecialConfig(ctx context.Context) (*models.SpecialConfig, error) {
	q := `SELECT problem_id, COALESCE(title, ''), COALESCE(description, ''), updated_at
	      FROM special_game_config WHERE id = 1`
	var cfg models.SpecialConfig
	err := s.Pool.QueryRow(ctx, q).Scan(&cfg.ProblemID, &cfg.Title, &cfg.Description, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertSpecialAttempt keeps exactly one row per (problem, user): the
// attempt with the highest symbol count. An attempt that does not beat the
// stored record leaves the row untouched. Reports whether the record was
// set or replaced.
func (s *Store) UpsertSpecialAttempt(ctx context.Context, a *models.SpecialAttempt) (bool, error) {
	q := `INSERT INTO special_game_attempts
	          (id, problem_id, user_id, username_snapshot, expression,
	           result_value, symbol_count, is_exact, recorded_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (problem_id, user_id) DO UPDATE
	      SET username_snapshot = EXCLUDED.username_snapshot,
	          expression        = EXCLUDED.expression,
	          result_value      = EXCLUDED.result_value,
	          symbol_count      = EXCLUDED.symbol_count,
	          is_exact          = EXCLUDED.is_exact,
	          recorded_at       = EXCLUDED.recorded_at
	      WHERE special_game_attempts.symbol_count < EXCLUDED.symbol_count
	      RETURNING id`
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, q,
		a.ID, a.ProblemID, a.UserID, a.UsernameSnapshot, a.Expression,
		a.ResultValue, a.SymbolCount, a.IsExact, a.RecordedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert special attempt: %w", err)
	}
	return true, nil
}

// GetSpecialAttempt loads a user's standing record for a problem, or nil.
func (s *Store) GetSpecialAttempt(ctx context.Context, problemID, userID uuid.UUID) (*models.SpecialAttempt, error) {
	q := `SELECT id, problem_id, user_id, username_snapshot, expression,
	             result_value, symbol_count, is_exact, recorded_at
	      FROM special_game_attempts
	      WHERE problem_id=$1 AND user_id=$2`
	var a models.SpecialAttempt
	err := s.Pool.QueryRow(ctx, q, problemID, userID).Scan(
		&a.ID, &a.ProblemID, &a.UserID, &a.UsernameSnapshot, &a.Expression,
		&a.ResultValue, &a.SymbolCount, &a.IsExact, &a.RecordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SpecialLeaderboard lists the exact records for a problem, one per user:
// most symbols first (the special mode rewards elaborate expressions),
// earliest recording breaking ties.
func (s *Store) SpecialLeaderboard(ctx context.Context, problemID uuid.UUID, limit int) ([]*models.SpecialAttempt, error) {
	q := `SELECT id, problem_id, user_id, username_snapshot, expression,
	             result_value, symbol_count, is_exact, recorded_at
	      FROM special_game_attempts
	      WHERE problem_id=$1 AND is_exact
	      ORDER BY symbol_count DESC, recorded_at ASC
	      LIMIT $2`
	rows, err := s.Pool.Query(ctx, q, problemID, limit)
	if err != nil {
		return nil, fmt.Errorf("special leaderboard: %w", err)
	}
	defer rows.Close()

	var attempts []*models.SpecialAttempt
	for rows.Next() {
		var a models.SpecialAttempt
		if err := rows.Scan(
			&a.ID, &a.ProblemID, &a.UserID, &a.UsernameSnapshot, &a.Expression,
			&a.ResultValue, &a.SymbolCount, &a.IsExact, &a.RecordedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
