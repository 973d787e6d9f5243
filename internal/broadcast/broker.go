// internal/broadcast/broker.go
//
// Broker is the connection-scoped fan-out for live observers. It is an
// explicitly owned, injectable object: construct one in main, hand it to
// whoever emits events, substitute a fake in tests. Three independent
// scopes exist: one subscriber set per room, one dashboard set, and one
// lobby set whose connections carry a player identity.
//
// Delivery is fire-and-forget against a point-in-time snapshot of the
// subscriber set: at-most-once, no ordering across scopes, no replay for
// late joiners. A slow or dead recipient never blocks the rest; its
// message is dropped instead.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Identity is the player behind a lobby connection.
type Identity struct {
	ActorID     uuid.UUID `json:"user_id"`
	DisplayName string    `json:"username"`
}

// Conn is one live subscriber. The ws handler drains OutChan into the
// socket (write pump); everything the Broker delivers goes through it.
type Conn struct {
	ID       uuid.UUID
	Identity *Identity
	Cancel   func()

	OutChan chan interface{}

	logger *logrus.Logger
	seq    uint64
}

// NewConn builds a subscriber connection with a buffered outbound channel.
func NewConn(logger *logrus.Logger, buffer int) *Conn {
	id, _ := uuid.NewRandom()
	return &Conn{
		ID:      id,
		OutChan: make(chan interface{}, buffer),
		logger:  logger,
	}
}

// Write pushes a payload onto the connection's outbound channel without
// blocking. A full or abandoned channel drops the payload.
func (c *Conn) Write(payload interface{}) {
	select {
	case c.OutChan <- payload:
	default:
		if c.logger != nil {
			c.logger.Warnf("broadcast: dropping payload for connection %s (channel full or closed)", c.ID)
		}
	}
}

// Broker owns the subscriber sets for every scope.
type Broker struct {
	mu        sync.Mutex
	rooms     map[uuid.UUID]map[*Conn]struct{}
	dashboard map[*Conn]struct{}
	lobby     map[*Conn]struct{}
	seq       uint64
}

func NewBroker() *Broker {
	return &Broker{
		rooms:     make(map[uuid.UUID]map[*Conn]struct{}),
		dashboard: make(map[*Conn]struct{}),
		lobby:     make(map[*Conn]struct{}),
	}
}

// ConnectRoom subscribes conn to a room scope, creating the subscriber set
// on first join.
func (b *Broker) ConnectRoom(roomID uuid.UUID, conn *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.rooms[roomID]
	if !ok {
		set = make(map[*Conn]struct{})
		b.rooms[roomID] = set
	}
	set[conn] = struct{}{}
}

// DisconnectRoom removes conn from a room scope. Idempotent; an emptied
// subscriber set is deleted so abandoned rooms do not leak.
func (b *Broker) DisconnectRoom(roomID uuid.UUID, conn *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.rooms[roomID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(b.rooms, roomID)
	}
}

// BroadcastRoom delivers payload to every connection currently subscribed
// to the room.
func (b *Broker) BroadcastRoom(roomID uuid.UUID, payload interface{}) {
	for _, conn := range b.snapshotRoom(roomID) {
		conn.Write(payload)
	}
}

func (b *Broker) snapshotRoom(roomID uuid.UUID) []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.rooms[roomID]
	conns := make([]*Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// ConnectDashboard subscribes conn to the dashboard scope.
func (b *Broker) ConnectDashboard(conn *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dashboard[conn] = struct{}{}
}

// DisconnectDashboard removes conn from the dashboard scope. Idempotent.
func (b *Broker) DisconnectDashboard(conn *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dashboard, conn)
}

// BroadcastDashboard delivers payload to every dashboard subscriber.
func (b *Broker) BroadcastDashboard(payload interface{}) {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.dashboard))
	for conn := range b.dashboard {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Write(payload)
	}
}

// ConnectLobby subscribes conn to the lobby scope with the given identity.
// The connection's admission order is recorded so the roster can prefer
// the most recently established connection per actor.
func (b *Broker) ConnectLobby(conn *Conn, identity Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	conn.Identity = &identity
	conn.seq = b.seq
	b.lobby[conn] = struct{}{}
}

// DisconnectLobby removes conn from the lobby scope. Idempotent.
func (b *Broker) DisconnectLobby(conn *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lobby, conn)
}

// BroadcastLobby delivers payload to every lobby subscriber.
func (b *Broker) BroadcastLobby(payload interface{}) {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.lobby))
	for conn := range b.lobby {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Write(payload)
	}
}

// LobbyRoster returns the connected identities deduplicated by actor id.
// When one actor holds several simultaneous connections, the identity of
// the most recently established one wins.
func (b *Broker) LobbyRoster() []Identity {
	b.mu.Lock()
	defer b.mu.Unlock()

	latest := make(map[uuid.UUID]*Conn)
	for conn := range b.lobby {
		if conn.Identity == nil {
			continue
		}
		current, ok := latest[conn.Identity.ActorID]
		if !ok || conn.seq > current.seq {
			latest[conn.Identity.ActorID] = conn
		}
	}

	roster := make([]Identity, 0, len(latest))
	for _, conn := range latest {
		roster = append(roster, *conn.Identity)
	}
	return roster
}

// OnlinePlayerCount is the number of live room-scope connections across
// all rooms.
func (b *Broker) OnlinePlayerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, set := range b.rooms {
		total += len(set)
	}
	return total
}

// RoomSubscriberCount reports the size of one room's subscriber set.
func (b *Broker) RoomSubscriberCount(roomID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[roomID])
}
