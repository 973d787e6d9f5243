// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seungho-lim/numrace/internal/auth"
	"github.com/seungho-lim/numrace/internal/models"
)

// authenticate resolves the acting user from the auth_token cookie or an
// Authorization bearer header.
func (s *Server) authenticate(r *http.Request) (*models.User, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		return nil, errors.New("missing auth token")
	}
	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, errors.New("invalid user id in token")
	}
	user, err := s.Store.GetUserByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// A valid token for a row that no longer exists.
		return nil, errors.New("unknown user")
	}
	return user, nil
}

// CreateUserHandler registers a new player account.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" {
		s.httpError(w, http.StatusBadRequest, "email, password and username are required")
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}
	if err := s.Store.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			s.httpError(w, http.StatusConflict, "email already exists")
			return
		}
		s.Logger.Warnf("create user: %v", err)
		s.httpError(w, http.StatusInternalServerError, "error creating user")
		return
	}

	user.Password = ""
	s.writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// LoginHandler verifies credentials and issues a JWT, both in the response
// body and as an HttpOnly cookie.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := s.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		s.httpError(w, http.StatusForbidden, "authentication failed")
		return
	}
	ok, err := auth.ComparePasswordAndHash(req.Password, user.Password)
	if err != nil || !ok {
		s.httpError(w, http.StatusForbidden, "authentication failed")
		return
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		s.Logger.Warnf("sign jwt: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})

	user.Password = ""
	s.writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// MeHandler returns the authenticated user's profile and aggregates.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.httpError(w, http.StatusForbidden, "invalid token")
		return
	}
	user.Password = ""
	s.writeJSON(w, http.StatusOK, user)
}

// LeaderboardHandler returns the top players by rating, then total score.
func (s *Server) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	users, err := s.Store.Leaderboard(r.Context(), limit)
	if err != nil {
		s.Logger.Warnf("leaderboard: %v", err)
		s.httpError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	for _, u := range users {
		u.Password = ""
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": users})
}
