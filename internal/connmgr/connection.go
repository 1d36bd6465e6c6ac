// Package connmgr implements the gateway's Connection Manager (spec §4.2):
// the WebSocket accept loop, per-connection lifecycle, the heartbeat state
// machine, and the authentication handshake gate.
//
// Grounded on the teacher's internal/websocket/agent_hub.go and hub.go: a
// hub owning a connection map mutated only through register/unregister,
// one goroutine pair (reader/writer) per connection, a send channel sized
// to tolerate bursts, and a periodic sweep for stale connections. Adapted
// from agent-identity-keyed connections with a DB-backed online/offline
// flag to MUD-name-keyed connections with a Registry-backed peer
// advertisement and an explicit per-connection heartbeat state machine
// (spec §4.2 calls for Fresh/Authenticated/Stale/Closed, which the
// teacher's boolean LastPing staleness check doesn't model explicitly).
package connmgr

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the per-connection heartbeat/lifecycle state (spec §4.2).
type State int

const (
	StateFresh State = iota
	StateAuthenticated
	StateStale
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateAuthenticated:
		return "authenticated"
	case StateStale:
		return "stale"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the Connection Record (spec §3) plus the plumbing needed
// to write to and eventually close its socket. All mutable fields are
// guarded by mu; the Router and other readers only ever see a snapshot via
// the accessor methods, never the raw struct.
type Connection struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	state         State
	mudName       string
	host          string
	connectedAt   time.Time
	lastSeenAt    time.Time
	messageCount  uint64
	version       string
	authViolations int

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(id string, conn *websocket.Conn, host string) *Connection {
	now := time.Now()
	return &Connection{
		ID:          id,
		conn:        conn,
		host:        host,
		send:        make(chan []byte, 256),
		state:       StateFresh,
		connectedAt: now,
		lastSeenAt:  now,
		closed:      make(chan struct{}),
	}
}

// MudName returns the authenticated MUD name, or "" if not yet authenticated.
func (c *Connection) MudName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mudName
}

func (c *Connection) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

func (c *Connection) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateAuthenticated
}

func (c *Connection) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

func (c *Connection) LastSeenAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeenAt
}

func (c *Connection) MessageCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messageCount
}

func (c *Connection) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeenAt = time.Now()
	c.mu.Unlock()
}

func (c *Connection) markAuthenticated(mudName, version string) {
	c.mu.Lock()
	c.state = StateAuthenticated
	c.mudName = mudName
	c.version = version
	c.mu.Unlock()
}

func (c *Connection) incrementMessageCount() {
	c.mu.Lock()
	c.messageCount++
	c.mu.Unlock()
}

func (c *Connection) recordAuthViolation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authViolations++
	return c.authViolations
}

// Send enqueues a raw frame for delivery. It never blocks: if the
// connection's buffer is full, the frame is dropped and false is returned
// so a broadcasting caller can log and move on without stalling other
// destinations (spec §4.3 "Broadcast isolation").
func (c *Connection) Send(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close tears the connection down exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.closed)
		close(c.send)
		c.conn.Close()
	})
}
