// internal/handlers/round.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/seungho-lim/numrace/internal/engine"
	"github.com/seungho-lim/numrace/internal/match"
	"github.com/seungho-lim/numrace/internal/models"
)

// startRound begins a timed round in the room. Only the host may start one,
// and a room can carry at most one ACTIVE match. The problem queue either
// comes from the request body or is drawn at random from the catalog.
func (s *Server) startRound(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) {
	user, err := s.authenticate(r)
	if err != nil {
		s.httpError(w, http.StatusForbidden, "invalid token")
		return
	}
	room := s.roomOrError(r.Context(), w, roomID)
	if room == nil {
		return
	}
	if room.HostID != user.ID && !user.IsAdmin {
		s.httpError(w, http.StatusForbidden, "only the host can start a round")
		return
	}

	active, err := s.Matches.GetActiveMatch(r.Context(), roomID)
	if err != nil {
		s.Logger.Warnf("check active match: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to start round")
		return
	}
	if active != nil {
		s.httpError(w, http.StatusConflict, "a round is already in progress")
		return
	}

	var req struct {
		DurationMinutes int                 `json:"duration_minutes"`
		ProblemCount    int                 `json:"problem_count"`
		Problems        []models.ProblemRef `json:"problems"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 3
	}
	if req.ProblemCount <= 0 {
		req.ProblemCount = 1
	}

	queue := req.Problems
	if len(queue) == 0 {
		picked, err := s.Store.PickRandomProblems(r.Context(), room.RoundType, req.ProblemCount)
		if err != nil || len(picked) == 0 {
			s.Logger.Warnf("pick problems: %v", err)
			s.httpError(w, http.StatusConflict, "no problems available for this round type")
			return
		}
		for _, p := range picked {
			queue = append(queue, models.ProblemRef{TargetNumber: p.TargetNumber, OptimalCost: p.OptimalCost})
		}
	}

	m, err := s.Matches.CreateMatch(r.Context(), room, queue[0].TargetNumber, queue[0].OptimalCost,
		room.CurrentRound, req.DurationMinutes, queue, playerIDs(room))
	if err != nil {
		s.Logger.Warnf("create match: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to start round")
		return
	}
	if err := s.Store.SetRoomStatus(r.Context(), roomID, models.RoomInProgress); err != nil {
		s.Logger.Warnf("set room status: %v", err)
	}

	s.writeJSON(w, http.StatusCreated, m)
}

// activeRound reports the room's current ACTIVE match, finalizing it first
// if its deadline has already passed.
func (s *Server) activeRound(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) {
	m, err := s.Matches.GetActiveMatch(r.Context(), roomID)
	if err != nil {
		s.Logger.Warnf("active match: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to load round")
		return
	}
	if m == nil {
		s.httpError(w, http.StatusNotFound, "no_active_match")
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// submitExpression evaluates one attempt against the room's live problem.
func (s *Server) submitExpression(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) {
	user, err := s.authenticate(r)
	if err != nil {
		s.httpError(w, http.StatusForbidden, "invalid token")
		return
	}

	var req struct {
		Expression string `json:"expression"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	m, err := s.Matches.GetActiveMatch(r.Context(), roomID)
	if err != nil {
		s.Logger.Warnf("active match: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to submit")
		return
	}
	if m == nil {
		s.httpError(w, http.StatusConflict, match.ErrRoundNotActive.Error())
		return
	}

	teamLabel := ""
	if participant, err := s.Store.GetParticipant(r.Context(), roomID, user.ID); err == nil && participant != nil {
		teamLabel = participant.TeamLabel
	}

	sub, err := s.Matches.Submit(r.Context(), m, user, teamLabel, req.Expression)
	if err != nil {
		switch {
		case errors.Is(err, match.ErrRoundNotActive):
			s.httpError(w, http.StatusConflict, match.ErrRoundNotActive.Error())
		case errors.Is(err, engine.ErrEmptyExpression):
			s.httpError(w, http.StatusBadRequest, engine.ErrEmptyExpression.Error())
		default:
			s.Logger.Warnf("submit: %v", err)
			s.httpError(w, http.StatusInternalServerError, "failed to submit")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

// forfeitRound closes the live match because the caller concedes. The
// remaining player slot holder, if any, is credited the win.
func (s *Server) forfeitRound(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) {
	user, err := s.authenticate(r)
	if err != nil {
		s.httpError(w, http.StatusForbidden, "invalid token")
		return
	}
	room := s.roomOrError(r.Context(), w, roomID)
	if room == nil {
		return
	}

	m, err := s.Matches.GetActiveMatch(r.Context(), roomID)
	if err != nil {
		s.Logger.Warnf("active match: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to forfeit")
		return
	}
	if m == nil {
		s.httpError(w, http.StatusConflict, match.ErrRoundNotActive.Error())
		return
	}

	winner := uuid.Nil
	if room.PlayerOneID != nil && *room.PlayerOneID != user.ID {
		winner = *room.PlayerOneID
	} else if room.PlayerTwoID != nil && *room.PlayerTwoID != user.ID {
		winner = *room.PlayerTwoID
	}

	if err := s.Matches.Forfeit(r.Context(), m, winner); err != nil {
		if errors.Is(err, match.ErrRoundNotActive) {
			s.httpError(w, http.StatusConflict, match.ErrRoundNotActive.Error())
			return
		}
		s.Logger.Warnf("forfeit: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to forfeit")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "forfeited"})
}

// AnalyzeHandler evaluates free-form practice input line by line and prices
// it, without touching any match. Disallowed or malformed lines come back
// with their error code instead of a value.
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	mode := engine.ModeCost
	switch engine.Mode(req.Mode) {
	case engine.ModeNormal, engine.ModeCombo:
		mode = engine.Mode(req.Mode)
	}
	s.writeJSON(w, http.StatusOK, engine.Analyze(req.Text, mode, engine.DefaultCosts))
}
