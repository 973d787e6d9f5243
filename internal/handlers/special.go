// internal/handlers/special.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/seungho-lim/numrace/internal/engine"
	"github.com/seungho-lim/numrace/internal/models"
)

// SpecialContextHandler returns the standing special-mode problem: its
// description plus the target drawn from the problem catalog.
func (s *Server) SpecialContextHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Store.GetSpecialConfig(r.Context())
	if err != nil || cfg == nil {
		s.httpError(w, http.StatusNotFound, "special game is not configured")
		return
	}
	resp := map[string]interface{}{
		"title":       cfg.Title,
		"description": cfg.Description,
		"updated_at":  cfg.UpdatedAt,
	}
	if cfg.ProblemID != nil {
		if problem, err := s.Store.GetProblem(r.Context(), *cfg.ProblemID); err == nil && problem != nil {
			resp["problem_id"] = problem.ID
			resp["target_number"] = problem.TargetNumber
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// SpecialSubmitHandler scores one attempt at the special-mode problem. The
// expression is normalized, evaluated under the extended grammar and priced
// by symbol count. Only exact hits count, and each player keeps a single
// record per problem that a new attempt must beat on symbol count.
func (s *Server) SpecialSubmitHandler(w http.ResponseWriter, r *http.Request) {
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

	cfg, err := s.Store.GetSpecialConfig(r.Context())
	if err != nil || cfg == nil || cfg.ProblemID == nil {
		s.httpError(w, http.StatusNotFound, "special game is not configured")
		return
	}
	problem, err := s.Store.GetProblem(r.Context(), *cfg.ProblemID)
	if err != nil || problem == nil {
		s.httpError(w, http.StatusNotFound, "special problem missing")
		return
	}

	normalized, err := engine.NormalizeSpecialExpression(req.Expression)
	if err != nil {
		s.specialError(w, err)
		return
	}
	value, err := engine.EvaluateSpecialExpression(normalized)
	if err != nil {
		s.specialError(w, err)
		return
	}
	symbols, err := engine.CountSymbolUsage(normalized)
	if err != nil {
		s.specialError(w, err)
		return
	}

	if value != int64(problem.TargetNumber) {
		s.httpError(w, http.StatusBadRequest,
			fmt.Sprintf("expression result %d does not match target %d", value, problem.TargetNumber))
		return
	}

	attemptID, err := uuid.NewRandom()
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "failed to record attempt")
		return
	}
	attempt := &models.SpecialAttempt{
		ID:               attemptID,
		ProblemID:        problem.ID,
		UserID:           user.ID,
		UsernameSnapshot: user.Username,
		Expression:       normalized,
		ResultValue:      value,
		SymbolCount:      symbols,
		IsExact:          true,
		RecordedAt:       time.Now(),
	}
	isRecord, err := s.Store.UpsertSpecialAttempt(r.Context(), attempt)
	if err != nil {
		s.Logger.Warnf("record special attempt: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to record attempt")
		return
	}

	best := attempt
	message := "new personal record"
	if !isRecord {
		message = "symbol count must beat your standing record"
		if standing, err := s.Store.GetSpecialAttempt(r.Context(), problem.ID, user.ID); err == nil && standing != nil {
			best = standing
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"value":        value,
		"symbol_count": best.SymbolCount,
		"expression":   best.Expression,
		"is_record":    isRecord,
		"message":      message,
	})
}

// SpecialLeaderboardHandler ranks per-user records by symbol spend, highest
// first, ties broken by earliest record.
func (s *Server) SpecialLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Store.GetSpecialConfig(r.Context())
	if err != nil || cfg == nil || cfg.ProblemID == nil {
		s.httpError(w, http.StatusNotFound, "special game is not configured")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	attempts, err := s.Store.SpecialLeaderboard(r.Context(), *cfg.ProblemID, limit)
	if err != nil {
		s.Logger.Warnf("special leaderboard: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": attempts})
}

// specialError maps a classified special-mode failure onto a 400 with its
// machine code; anything unclassified is a 500.
func (s *Server) specialError(w http.ResponseWriter, err error) {
	if se, ok := engine.AsSpecialError(err); ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":   se.Code,
			"detail": se.Message,
		})
		return
	}
	s.httpError(w, http.StatusInternalServerError, "evaluation failed")
}
