// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/seungho-lim/numrace/internal/auth"
	"github.com/seungho-lim/numrace/internal/broadcast"
	"github.com/seungho-lim/numrace/internal/middleware"
)

// maxChatLength clamps relayed lobby chat messages, counted in runes.
const maxChatLength = 500

// clampMessage trims a chat message and truncates it to maxChatLength
// runes. Truncation is rune-aligned so a multi-byte character is never
// split.
func clampMessage(raw string) string {
	text := strings.TrimSpace(raw)
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}
	return text
}

// LobbyWSHandler runs the global lobby socket: presence roster plus chat
// relay. Auth rides on a ?token= query parameter because browsers cannot
// set headers on WebSocket upgrades. Auth failures close the accepted
// socket with InvalidAuthTokenError so clients can distinguish them from
// transport errors.
func (s *Server) LobbyWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			token = extractCookieToken(r.Header.Get("Cookie"), "auth_token")
		}
		userIDStr, err := auth.AuthenticateJWT(token)
		if err != nil {
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}
		user, err := s.Store.GetUserByID(r.Context(), userID)
		if err != nil || user == nil {
			c.Close(InvalidAuthTokenError, "unknown user")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := broadcast.NewConn(s.Logger, 32)
		conn.Cancel = cancel

		s.Broker.ConnectLobby(conn, broadcast.Identity{
			ActorID:     user.ID,
			DisplayName: user.Username,
		})
		middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)
		s.broadcastRoster()

		go wsWritePump(ctx, c, conn, s.Logger)
		err = s.lobbyReadLoop(ctx, c, user.ID, user.Username)

		s.Broker.DisconnectLobby(conn)
		cancel()
		s.broadcastRoster()
		middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, err)
	}
}

// broadcastRoster pushes the deduplicated presence list to every lobby
// subscriber.
func (s *Server) broadcastRoster() {
	s.Broker.BroadcastLobby(map[string]interface{}{
		"type":  "roster",
		"users": s.Broker.LobbyRoster(),
	})
}

// lobbyReadLoop relays chat packets until the socket closes.
func (s *Server) lobbyReadLoop(ctx context.Context, c *websocket.Conn, userID uuid.UUID, username string) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg, &packet); err != nil {
			s.Logger.Warnf("lobby: invalid json from %s: %v", userID, err)
			continue
		}

		switch packet.Type {
		case "chat":
			text := clampMessage(packet.Message)
			if text == "" {
				continue
			}
			s.Broker.BroadcastLobby(map[string]interface{}{
				"type":     "chat",
				"user_id":  userID,
				"username": username,
				"message":  text,
				"sent_at":  time.Now().UTC(),
			})
		case "ping":
			// Keepalive probe from clients that cannot send WS pings.
		default:
			s.Logger.Debugf("lobby: unknown packet type %q from %s", packet.Type, userID)
		}
	}
}
