// internal/handlers/dashboard.go
package handlers

import (
	"context"
	"net/http"
)

// dashboardSummary assembles the operator overview payload.
func (s *Server) dashboardSummary(ctx context.Context) (map[string]interface{}, error) {
	totalUsers, activeRooms, ongoingMatches, err := s.Store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"type":            "dashboard_summary",
		"total_users":     totalUsers,
		"active_rooms":    activeRooms,
		"ongoing_matches": ongoingMatches,
		"online_players":  s.Broker.OnlinePlayerCount(),
	}, nil
}

// DashboardSummaryHandler serves the same overview the dashboard socket
// greets with, for clients that prefer polling.
func (s *Server) DashboardSummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dashboardSummary(r.Context())
	if err != nil {
		s.Logger.Warnf("dashboard summary: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}
