// internal/handlers/room.go
package handlers

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seungho-lim/numrace/internal/match"
	"github.com/seungho-lim/numrace/internal/models"
)

const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newJoinCode produces a 6-character room code. Ambiguous glyphs (O/0, I/l)
// are excluded from the alphabet.
func newJoinCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = joinCodeAlphabet[int(buf[i])%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// CreateRoomHandler creates a room with the caller as host. The host also
// becomes the room's first participant and claims the first player slot.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.httpError(w, http.StatusForbidden, "invalid token")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RoundType   string `json:"round_type"`
		MaxPlayers  int    `json:"max_players"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" {
		s.httpError(w, http.StatusBadRequest, "room name is required")
		return
	}
	roundType := models.RoundIndividual
	if req.RoundType == string(models.RoundTeam) {
		roundType = models.RoundTeam
	}
	if req.MaxPlayers <= 0 {
		req.MaxPlayers = 2
	}

	roomID, err := uuid.NewRandom()
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	code, err := newJoinCode()
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	now := time.Now()
	room := &models.Room{
		ID:           roomID,
		Code:         code,
		Name:         req.Name,
		Description:  req.Description,
		HostID:       user.ID,
		Status:       models.RoomWaiting,
		CurrentRound: 1,
		RoundType:    roundType,
		MaxPlayers:   req.MaxPlayers,
		PlayerOneID:  &user.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	participantID, err := uuid.NewRandom()
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	host := &models.RoomParticipant{
		ID:       participantID,
		RoomID:   roomID,
		UserID:   user.ID,
		Role:     models.RolePlayer,
		JoinedAt: now,
	}

	if err := s.Store.CreateRoom(r.Context(), room, host); err != nil {
		s.Logger.Warnf("create room: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	s.writeJSON(w, http.StatusCreated, room)
}

// ListRoomsHandler lists rooms that are joinable or in play.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.Store.ListActiveRooms(r.Context())
	if err != nil {
		s.Logger.Warnf("list rooms: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// JoinRoomHandler admits the caller to a room identified by its join code.
// When a player slot is open and the caller asks to play, they are promoted
// into it; otherwise they join as a spectator.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.httpError(w, http.StatusForbidden, "invalid token")
		return
	}

	var req struct {
		Code      string `json:"code"`
		TeamLabel string `json:"team_label"`
		Spectate  bool   `json:"spectate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		s.httpError(w, http.StatusBadRequest, "join code is required")
		return
	}

	room, err := s.Store.GetRoomByCode(r.Context(), code)
	if err != nil || room == nil {
		s.httpError(w, http.StatusNotFound, "room not found")
		return
	}
	if room.Status == models.RoomCompleted || room.Status == models.RoomArchived {
		s.httpError(w, http.StatusConflict, "room is no longer joinable")
		return
	}

	// Rejoining is idempotent.
	if existing, err := s.Store.GetParticipant(r.Context(), room.ID, user.ID); err == nil && existing != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"room": room, "participant": existing})
		return
	}

	role := models.RoleSpectator
	if !req.Spectate {
		if room.PlayerOneID == nil {
			room.PlayerOneID = &user.ID
			role = models.RolePlayer
		} else if room.PlayerTwoID == nil {
			room.PlayerTwoID = &user.ID
			role = models.RolePlayer
		}
	}
	if role == models.RolePlayer {
		if err := s.Store.AssignPlayerSlot(r.Context(), room); err != nil {
			s.Logger.Warnf("assign player slot: %v", err)
			s.httpError(w, http.StatusInternalServerError, "failed to join room")
			return
		}
	}

	participantID, err := uuid.NewRandom()
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "failed to join room")
		return
	}
	participant := &models.RoomParticipant{
		ID:        participantID,
		RoomID:    room.ID,
		UserID:    user.ID,
		TeamLabel: req.TeamLabel,
		Role:      role,
		JoinedAt:  time.Now(),
	}
	if err := s.Store.CreateParticipant(r.Context(), participant); err != nil {
		s.Logger.Warnf("create participant: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	s.Broker.BroadcastRoom(room.ID, match.ParticipantJoined{
		Type:        match.EventParticipantJoined,
		RoomID:      room.ID,
		Participant: participant,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"room": room, "participant": participant})
}

// RoomRouter dispatches /rooms/{id} and its nested round operations.
func (s *Server) RoomRouter(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rooms/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.httpError(w, http.StatusBadRequest, "missing room id")
		return
	}
	roomID, err := uuid.Parse(parts[0])
	if err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			s.httpError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.getRoom(w, r, roomID)
		return
	}

	switch fmt.Sprintf("%s %s", r.Method, strings.Join(parts[1:], "/")) {
	case "GET participants":
		s.listParticipants(w, r, roomID)
	case "POST round/start":
		s.startRound(w, r, roomID)
	case "GET round/active":
		s.activeRound(w, r, roomID)
	case "POST submit":
		s.submitExpression(w, r, roomID)
	case "POST forfeit":
		s.forfeitRound(w, r, roomID)
	default:
		s.httpError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) {
	room, err := s.Store.GetRoom(r.Context(), roomID)
	if err != nil || room == nil {
		s.httpError(w, http.StatusNotFound, "room not found")
		return
	}
	participants, err := s.Store.ListParticipants(r.Context(), roomID)
	if err != nil {
		s.Logger.Warnf("list participants: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":         room,
		"participants": participants,
	})
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) {
	participants, err := s.Store.ListParticipants(r.Context(), roomID)
	if err != nil {
		s.Logger.Warnf("list participants: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to load participants")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

// playerIDs collects the user ids currently occupying the room's player
// slots.
func playerIDs(room *models.Room) []uuid.UUID {
	var ids []uuid.UUID
	if room.PlayerOneID != nil {
		ids = append(ids, *room.PlayerOneID)
	}
	if room.PlayerTwoID != nil {
		ids = append(ids, *room.PlayerTwoID)
	}
	return ids
}

// roomOrError loads the room or writes a 404.
func (s *Server) roomOrError(ctx context.Context, w http.ResponseWriter, roomID uuid.UUID) *models.Room {
	room, err := s.Store.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		s.httpError(w, http.StatusNotFound, "room not found")
		return nil
	}
	return room
}
