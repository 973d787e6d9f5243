// internal/broadcast/broker_test.go
package broadcast

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Conn) []interface{} {
	var out []interface{}
	for {
		select {
		case v := <-c.OutChan:
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestBroadcastRoomScoped(t *testing.T) {
	b := NewBroker()
	roomA, roomB := uuid.New(), uuid.New()

	inA := NewConn(nil, 4)
	inB := NewConn(nil, 4)
	b.ConnectRoom(roomA, inA)
	b.ConnectRoom(roomB, inB)

	b.BroadcastRoom(roomA, "hello")

	assert.Equal(t, []interface{}{"hello"}, drain(inA))
	assert.Empty(t, drain(inB))
}

func TestDisconnectRoomDeletesEmptySet(t *testing.T) {
	b := NewBroker()
	roomID := uuid.New()
	conn := NewConn(nil, 1)

	b.ConnectRoom(roomID, conn)
	assert.Equal(t, 1, b.RoomSubscriberCount(roomID))

	b.DisconnectRoom(roomID, conn)
	assert.Zero(t, b.RoomSubscriberCount(roomID))

	b.mu.Lock()
	_, stillThere := b.rooms[roomID]
	b.mu.Unlock()
	assert.False(t, stillThere, "emptied subscriber set must be removed")

	// Disconnecting again is a no-op.
	b.DisconnectRoom(roomID, conn)
}

func TestConnWriteDropsWhenFull(t *testing.T) {
	conn := NewConn(nil, 1)
	conn.Write("first")
	conn.Write("dropped")

	got := drain(conn)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0])
}

func TestLobbyRosterDedupPrefersNewest(t *testing.T) {
	b := NewBroker()
	actor := uuid.New()

	old := NewConn(nil, 1)
	b.ConnectLobby(old, Identity{ActorID: actor, DisplayName: "old-name"})
	fresh := NewConn(nil, 1)
	b.ConnectLobby(fresh, Identity{ActorID: actor, DisplayName: "new-name"})

	roster := b.LobbyRoster()
	require.Len(t, roster, 1)
	assert.Equal(t, "new-name", roster[0].DisplayName)

	// Dropping the newest connection falls back to the older identity.
	b.DisconnectLobby(fresh)
	roster = b.LobbyRoster()
	require.Len(t, roster, 1)
	assert.Equal(t, "old-name", roster[0].DisplayName)

	b.DisconnectLobby(old)
	assert.Empty(t, b.LobbyRoster())
}

func TestBroadcastLobbyAndDashboard(t *testing.T) {
	b := NewBroker()

	lobbyConn := NewConn(nil, 2)
	b.ConnectLobby(lobbyConn, Identity{ActorID: uuid.New(), DisplayName: "p1"})
	dashConn := NewConn(nil, 2)
	b.ConnectDashboard(dashConn)

	b.BroadcastLobby("lobby-msg")
	b.BroadcastDashboard("dash-msg")

	assert.Equal(t, []interface{}{"lobby-msg"}, drain(lobbyConn))
	assert.Equal(t, []interface{}{"dash-msg"}, drain(dashConn))
}

func TestOnlinePlayerCount(t *testing.T) {
	b := NewBroker()
	roomA, roomB := uuid.New(), uuid.New()

	b.ConnectRoom(roomA, NewConn(nil, 1))
	b.ConnectRoom(roomA, NewConn(nil, 1))
	b.ConnectRoom(roomB, NewConn(nil, 1))

	assert.Equal(t, 3, b.OnlinePlayerCount())
}
