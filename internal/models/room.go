// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle of a contest room.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomInProgress RoomStatus = "in_progress"
	RoomCompleted  RoomStatus = "completed"
	RoomArchived   RoomStatus = "archived"
)

// RoundType distinguishes the individual round from the team relay round.
type RoundType string

const (
	RoundIndividual RoundType = "round1_individual"
	RoundTeam       RoundType = "round2_team"
)

// ParticipantRole marks whether a participant occupies a player slot or
// merely observes.
type ParticipantRole string

const (
	RolePlayer    ParticipantRole = "player"
	RoleSpectator ParticipantRole = "spectator"
)

// Room is one contest room. At most one ACTIVE match exists per room at a
// time; that invariant is enforced by the handlers that create matches.
type Room struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	HostID       uuid.UUID  `json:"host_id"`
	Status       RoomStatus `json:"status"`
	CurrentRound int        `json:"current_round"`
	RoundType    RoundType  `json:"round_type"`
	MaxPlayers   int        `json:"max_players"`
	PlayerOneID  *uuid.UUID `json:"player_one_id,omitempty"`
	PlayerTwoID  *uuid.UUID `json:"player_two_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RoomParticipant is one user's membership in a room.
type RoomParticipant struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	UserID    uuid.UUID       `json:"user_id"`
	TeamLabel string          `json:"team_label,omitempty"`
	IsReady   bool            `json:"is_ready"`
	Role      ParticipantRole `json:"role"`
	JoinedAt  time.Time       `json:"joined_at"`
}
