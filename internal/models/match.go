// internal/models/match.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the match lifecycle. Matches are created already ACTIVE;
// PENDING exists for completeness but is never externally observed.
type MatchStatus string

const (
	MatchPending MatchStatus = "pending"
	MatchActive  MatchStatus = "active"
	MatchClosed  MatchStatus = "closed"
)

// ProblemRef is one queued (target, optimal cost) pair inside a match's
// metadata snapshot.
type ProblemRef struct {
	TargetNumber int `json:"target_number"`
	OptimalCost  int `json:"optimal_cost"`
}

// MatchMetadata is the snapshot a match carries for the duration of a
// round: the ordered problem queue, the index of the problem currently in
// play, and round-specific context.
type MatchMetadata struct {
	Problems           []ProblemRef `json:"problems"`
	CurrentIndex       int          `json:"current_index"`
	PlayerIDs          []uuid.UUID  `json:"player_ids,omitempty"`
	ProblemDurationSec int          `json:"problem_duration_sec,omitempty"`
}

// Match is one timed competitive unit within a room, spanning one or more
// sequential problems. A CLOSED match is immutable.
type Match struct {
	ID                  uuid.UUID      `json:"id"`
	RoomID              uuid.UUID      `json:"room_id"`
	RoundType           RoundType      `json:"round_type"`
	TargetNumber        int            `json:"target_number"`
	OptimalCost         int            `json:"optimal_cost"`
	Status              MatchStatus    `json:"status"`
	Deadline            *time.Time     `json:"deadline,omitempty"`
	StartedAt           *time.Time     `json:"started_at,omitempty"`
	FinishedAt          *time.Time     `json:"finished_at,omitempty"`
	WinningSubmissionID *uuid.UUID     `json:"winning_submission_id,omitempty"`
	RoundNumber         int            `json:"round_number"`
	Metadata            *MatchMetadata `json:"metadata_snapshot,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Submission is one attempt against a match's current problem.
type Submission struct {
	ID             uuid.UUID  `json:"id"`
	MatchID        uuid.UUID  `json:"match_id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	TeamLabel      string     `json:"team_label,omitempty"`
	Expression     string     `json:"expression"`
	ResultValue    *float64   `json:"result_value"`
	Cost           int        `json:"cost"`
	Distance       *float64   `json:"distance"`
	IsOptimal      bool       `json:"is_optimal"`
	Score          int        `json:"score"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	SubmittedRound int        `json:"submitted_round"`
}

// Problem is a read-only catalog entry owned by the admin subsystem.
type Problem struct {
	ID           uuid.UUID `json:"id"`
	RoundType    RoundType `json:"round_type"`
	TargetNumber int       `json:"target_number"`
	OptimalCost  int       `json:"optimal_cost"`
	CreatedAt    time.Time `json:"created_at"`
}
