// internal/database/problem.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seungho-lim/numrace/internal/models"
)

func (s *Store) CreateProblem(ctx context.Context, p *models.Problem) error {
	q := `INSERT INTO problems (id, round_type, target_number, optimal_cost, created_at)
	      VALUES ($1,$2,$3,$4,$5)`
	if _, err := s.Pool.Exec(ctx, q, p.ID, p.RoundType, p.TargetNumber, p.OptimalCost, p.CreatedAt); err != nil {
		return fmt.Errorf("insert problem: %w", err)
	}
	return nil
}

func (s *Store) GetProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error) {
	q := `SELECT id, round_type, target_number, optimal_cost, created_at FROM problems WHERE id=$1`
	var p models.Problem
	err := s.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.RoundType, &p.TargetNumber, &p.OptimalCost, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PickRandomProblems draws up to limit problems of the given round type in
// random order, used to build a round's problem queue.
func (s *Store) PickRandomProblems(ctx context.Context, roundType models.RoundType, limit int) ([]*models.Problem, error) {
	q := `SELECT id, round_type, target_number, optimal_cost, created_at
	      FROM problems
	      WHERE round_type=$1
	      ORDER BY random()
	      LIMIT $2`
	rows, err := s.Pool.Query(ctx, q, roundType, limit)
	if err != nil {
		return nil, fmt.Errorf("pick problems: %w", err)
	}
	defer rows.Close()

	var problems []*models.Problem
	for rows.Next() {
		var p models.Problem
		if err := rows.Scan(&p.ID, &p.RoundType, &p.TargetNumber, &p.OptimalCost, &p.CreatedAt); err != nil {
			return nil, err
		}
		problems = append(problems, &p)
	}
	return problems, rows.Err()
}
