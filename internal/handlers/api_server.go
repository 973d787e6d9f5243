// internal/handlers/api_server.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seungho-lim/numrace/internal/broadcast"
	"github.com/seungho-lim/numrace/internal/engine"
	"github.com/seungho-lim/numrace/internal/match"
	"github.com/seungho-lim/numrace/internal/models"
)

// Datastore is the persistence surface the HTTP and WebSocket handlers
// depend on. *database.Store satisfies it. Getters return (nil, nil) when
// the row does not exist; callers must check for nil, not just the error.
type Datastore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.User, error)
	Counts(ctx context.Context) (totalUsers, activeRooms, ongoingMatches int, err error)

	CreateRoom(ctx context.Context, room *models.Room, host *models.RoomParticipant) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListActiveRooms(ctx context.Context) ([]*models.Room, error)
	SetRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error
	AssignPlayerSlot(ctx context.Context, room *models.Room) error
	GetParticipant(ctx context.Context, roomID, userID uuid.UUID) (*models.RoomParticipant, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*models.RoomParticipant, error)
	CreateParticipant(ctx context.Context, p *models.RoomParticipant) error

	GetProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
	PickRandomProblems(ctx context.Context, roundType models.RoundType, limit int) ([]*models.Problem, error)

	GetSpecialConfig(ctx context.Context) (*models.SpecialConfig, error)
	GetSpecialAttempt(ctx context.Context, problemID, userID uuid.UUID) (*models.SpecialAttempt, error)
	UpsertSpecialAttempt(ctx context.Context, a *models.SpecialAttempt) (bool, error)
	SpecialLeaderboard(ctx context.Context, problemID uuid.UUID, limit int) ([]*models.SpecialAttempt, error)
}

// Server bundles the HTTP and WebSocket handlers with their collaborators.
// Construct one in main and register its routes on a mux.
type Server struct {
	Store   Datastore
	Matches *match.Service
	Broker  *broadcast.Broker
	Engine  *engine.Engine
	Logger  *logrus.Logger
}

func NewServer(store Datastore, matches *match.Service, broker *broadcast.Broker, logger *logrus.Logger) *Server {
	return &Server{
		Store:   store,
		Matches: matches,
		Broker:  broker,
		Engine:  engine.NewEngine(nil),
		Logger:  logger,
	}
}

// writeJSON serializes v with a status code. Encoding failures are logged;
// the status line has already gone out by then.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warnf("write response: %v", err)
	}
}

// httpError emits the uniform error envelope {"detail": ...}.
func (s *Server) httpError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}
