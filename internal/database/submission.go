// internal/database/submission.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/seungho-lim/numrace/internal/models"
)

func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	q := `INSERT INTO submissions (id, match_id, user_id, team_label, expression,
	          result_value, cost, distance, is_optimal, score, submitted_at, submitted_round)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := s.Pool.Exec(ctx, q,
		sub.ID, sub.MatchID, sub.UserID, nullableString(sub.TeamLabel), sub.Expression,
		sub.ResultValue, sub.Cost, sub.Distance, sub.IsOptimal, sub.Score,
		sub.SubmittedAt, sub.SubmittedRound,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *Store) ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.Submission, error) {
	q := `SELECT id, match_id, user_id, COALESCE(team_label, ''), expression,
	             result_value, cost, distance, is_optimal, score, submitted_at, submitted_round
	      FROM submissions
	      WHERE match_id=$1
	      ORDER BY submitted_at`
	rows, err := s.Pool.Query(ctx, q, matchID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		var sub models.Submission
		if err := rows.Scan(
			&sub.ID, &sub.MatchID, &sub.UserID, &sub.TeamLabel, &sub.Expression,
			&sub.ResultValue, &sub.Cost, &sub.Distance, &sub.IsOptimal, &sub.Score,
			&sub.SubmittedAt, &sub.SubmittedRound,
		); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

func (s *Store) DeleteByMatch(ctx context.Context, matchID uuid.UUID) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM submissions WHERE match_id=$1`, matchID); err != nil {
		return fmt.Errorf("delete submissions: %w", err)
	}
	return nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
