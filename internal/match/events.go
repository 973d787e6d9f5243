// internal/match/events.go
package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/seungho-lim/numrace/internal/models"
)

// EventType is the stable discriminant carried by every event payload.
type EventType string

const (
	EventRoundStarted       EventType = "round_started"
	EventSubmissionReceived EventType = "submission_received"
	EventProblemAdvanced    EventType = "problem_advanced"
	EventRoundFinished      EventType = "round_finished"
	EventRoomClosed         EventType = "room_closed"
	EventParticipantJoined  EventType = "participant_joined"
)

// Close reasons attached to RoundFinished events.
const (
	ReasonOptimal   = "optimal"
	ReasonTargetHit = "target_hit"
	ReasonTimeout   = "timeout"
	ReasonForfeit   = "forfeit"
)

// RoundStarted announces a freshly created match to the room.
type RoundStarted struct {
	Type         EventType           `json:"type"`
	RoomID       uuid.UUID           `json:"room_id"`
	MatchID      uuid.UUID           `json:"match_id"`
	TargetNumber int                 `json:"target_number"`
	OptimalCost  int                 `json:"optimal_cost"`
	Deadline     *time.Time          `json:"deadline"`
	Problems     []models.ProblemRef `json:"problems"`
	CurrentIndex int                 `json:"current_index"`
}

// SubmissionReceived carries a persisted submission to the room.
type SubmissionReceived struct {
	Type       EventType          `json:"type"`
	RoomID     uuid.UUID          `json:"room_id"`
	MatchID    uuid.UUID          `json:"match_id"`
	Submission *models.Submission `json:"submission"`
}

// ProblemAdvanced announces that the match moved to the next queued
// problem.
type ProblemAdvanced struct {
	Type         EventType  `json:"type"`
	RoomID       uuid.UUID  `json:"room_id"`
	MatchID      uuid.UUID  `json:"match_id"`
	CurrentIndex int        `json:"current_index"`
	TargetNumber int        `json:"target_number"`
	OptimalCost  int        `json:"optimal_cost"`
	Deadline     *time.Time `json:"deadline"`
}

// RoundFinished announces terminal match closure.
type RoundFinished struct {
	Type               EventType  `json:"type"`
	RoomID             uuid.UUID  `json:"room_id"`
	MatchID            uuid.UUID  `json:"match_id"`
	Reason             string     `json:"reason"`
	WinnerSubmissionID *uuid.UUID `json:"winner_submission_id,omitempty"`
	WinnerUserID       *uuid.UUID `json:"winner_user_id,omitempty"`
}

// RoomClosed announces that a room was removed by a cleanup sweep.
type RoomClosed struct {
	Type   EventType `json:"type"`
	RoomID uuid.UUID `json:"room_id"`
	Reason string    `json:"reason"`
}

// ParticipantJoined announces a new room participant.
type ParticipantJoined struct {
	Type        EventType               `json:"type"`
	RoomID      uuid.UUID               `json:"room_id"`
	Participant *models.RoomParticipant `json:"participant"`
}
