// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seungho-lim/numrace/internal/broadcast"
	"github.com/seungho-lim/numrace/internal/middleware"
)

// RoomWSHandler subscribes a client to one room's event stream. The socket
// is observe-only: all state changes go through the HTTP endpoints, and the
// read loop exists solely to detect disconnects. A missing or malformed
// room id closes the accepted socket with InvalidRoomIDError.
func (s *Server) RoomWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/rooms/"), "/")
		roomID, err := uuid.Parse(idStr)
		if err != nil {
			c.Close(InvalidRoomIDError, "invalid room id")
			return
		}
		if room, err := s.Store.GetRoom(r.Context(), roomID); err != nil || room == nil {
			c.Close(InvalidRoomIDError, "room not found")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := broadcast.NewConn(s.Logger, 32)
		conn.Cancel = cancel

		s.Broker.ConnectRoom(roomID, conn)
		middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)

		go wsWritePump(ctx, c, conn, s.Logger)
		err = wsDrainReads(ctx, c)

		s.Broker.DisconnectRoom(roomID, conn)
		cancel()
		middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, err)
	}
}

// DashboardWSHandler subscribes a client to the global dashboard stream.
func (s *Server) DashboardWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"dashboard"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "dashboard" {
			c.Close(BadSubprotocolError, "client must speak the dashboard subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := broadcast.NewConn(s.Logger, 32)
		conn.Cancel = cancel

		s.Broker.ConnectDashboard(conn)
		middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)

		// Greet with the current summary so the client renders immediately.
		if summary, err := s.dashboardSummary(ctx); err == nil {
			conn.Write(summary)
		}

		go wsWritePump(ctx, c, conn, s.Logger)
		err = wsDrainReads(ctx, c)

		s.Broker.DisconnectDashboard(conn)
		cancel()
		middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, err)
	}
}

// wsWritePump drains the broker connection's outbound channel into the
// socket, pinging periodically to detect dead peers.
func wsWritePump(ctx context.Context, c *websocket.Conn, conn *broadcast.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Warnf("ws: marshal outgoing payload for %s: %v", conn.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("ws: write to %s failed: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ws: ping to %s failed, assuming disconnect: %v", conn.ID, err)
				return
			}
		}
	}
}

// wsDrainReads blocks reading (and discarding) frames until the socket
// closes or the context ends. Returns the terminal read error.
func wsDrainReads(ctx context.Context, c *websocket.Conn) error {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
	}
}
