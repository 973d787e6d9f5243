// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seungho-lim/numrace/internal/auth"
	"github.com/seungho-lim/numrace/internal/models"
)

const userColumns = `id, email, password, username, is_admin,
       rating, win_count, loss_count, total_score, created_at`

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (` + userColumns + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	err = pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username, user.IsAdmin,
			user.Rating, user.WinCount, user.LossCount, user.TotalScore, user.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(s.Pool.QueryRow(ctx, q, email))
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(s.Pool.QueryRow(ctx, q, id))
}

// aggregateFields whitelists the columns Increment may touch; anything
// else is a programming error, not user input.
var aggregateFields = map[string]struct{}{
	"total_score": {},
	"win_count":   {},
	"loss_count":  {},
	"rating":      {},
}

// Increment atomically bumps one aggregate column for a user.
func (s *Store) Increment(ctx context.Context, userID uuid.UUID, field string, delta int) error {
	if _, ok := aggregateFields[field]; !ok {
		return fmt.Errorf("increment: field %q is not an aggregate column", field)
	}
	q := fmt.Sprintf(`UPDATE users SET %s = %s + $2 WHERE id=$1`, field, field)
	if _, err := s.Pool.Exec(ctx, q, userID, delta); err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	return nil
}

// Leaderboard returns the top users ordered by rating then total score.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	q := `SELECT ` + userColumns + `
	      FROM users
	      ORDER BY rating DESC, total_score DESC
	      LIMIT $1`
	rows, err := s.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Counts returns the dashboard summary totals in one round trip each.
func (s *Store) Counts(ctx context.Context) (totalUsers, activeRooms, ongoingMatches int, err error) {
	if err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&totalUsers); err != nil {
		return 0, 0, 0, fmt.Errorf("count users: %w", err)
	}
	if err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE status != $1`, models.RoomArchived).Scan(&activeRooms); err != nil {
		return 0, 0, 0, fmt.Errorf("count rooms: %w", err)
	}
	if err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM matches WHERE status = $1`, models.MatchActive).Scan(&ongoingMatches); err != nil {
		return 0, 0, 0, fmt.Errorf("count matches: %w", err)
	}
	return totalUsers, activeRooms, ongoingMatches, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Password, &u.Username, &u.IsAdmin,
		&u.Rating, &u.WinCount, &u.LossCount, &u.TotalScore, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
