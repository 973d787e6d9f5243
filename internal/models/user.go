// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	IsAdmin bool `json:"is_admin"`

	Rating     int `json:"rating"`
	WinCount   int `json:"win_count"`
	LossCount  int `json:"loss_count"`
	TotalScore int `json:"total_score"`

	CreatedAt time.Time `json:"created_at"`
}

// SpecialAttempt is one recorded attempt at the standing special-mode
// problem; the leaderboard orders by symbol count.
type SpecialAttempt struct {
	ID               uuid.UUID `json:"id"`
	ProblemID        uuid.UUID `json:"problem_id"`
	UserID           uuid.UUID `json:"user_id"`
	UsernameSnapshot string    `json:"username"`
	Expression       string    `json:"expression"`
	ResultValue      int64     `json:"result_value"`
	SymbolCount      int       `json:"symbol_count"`
	IsExact          bool      `json:"is_exact"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// SpecialConfig is the single admin-configured special game problem.
type SpecialConfig struct {
	ProblemID   *uuid.UUID `json:"problem_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
