package connmgr

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mudmesh/gateway/internal/credential"
	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/ratelimit"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

// DuplicateNamePolicy resolves the duplicate-name admission question
// (DESIGN.md, open question decision 4): what happens when a second
// connection authenticates with a MUD name already in use.
type DuplicateNamePolicy string

const (
	// PolicyAllow admits the new connection and leaves the old one open;
	// only the new connection is reachable by name afterward.
	PolicyAllow DuplicateNamePolicy = "allow"
	// PolicyPreemptOld admits the new connection and closes the old one in
	// the background.
	PolicyPreemptOld DuplicateNamePolicy = "preempt-old"
	// PolicyRejectNew refuses the new connection's authentication outright.
	PolicyRejectNew DuplicateNamePolicy = "reject-new"
)

// FrameRouter is the Router's contract as seen by the Connection Manager.
// Defined here, not in package router, so connmgr never imports router —
// router imports connmgr for *Connection instead, keeping the dependency
// one-directional.
type FrameRouter interface {
	Route(ctx context.Context, from *Connection, env wire.Envelope)
}

// peerForgetter is satisfied by ratelimit.TokenBucketLimiter; checked via a
// type assertion so a test fake Limiter without ForgetPeer still works.
type peerForgetter interface {
	ForgetPeer(peerID string)
}

// Options configures a Manager. Zero-value durations fall back to the
// defaults spec §4.2 documents.
type Options struct {
	HeartbeatInterval   time.Duration
	StaleAfter          time.Duration
	AuthGracePeriod     time.Duration
	MaxAuthViolations   int
	DuplicateNamePolicy DuplicateNamePolicy
	// PeerRegistryTTL bounds how long a peer's mud_info:<name> registry
	// entry survives without a refresh by the maintenance scheduler before
	// expiring on its own (spec §3's Peer Registry Record, spec §6
	// `registryTTLSec`).
	PeerRegistryTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 60 * time.Second
	}
	if o.AuthGracePeriod <= 0 {
		o.AuthGracePeriod = 30 * time.Second
	}
	if o.MaxAuthViolations <= 0 {
		o.MaxAuthViolations = 3
	}
	if o.DuplicateNamePolicy == "" {
		o.DuplicateNamePolicy = PolicyAllow
	}
	if o.PeerRegistryTTL <= 0 {
		o.PeerRegistryTTL = time.Hour
	}
	return o
}

// Manager is the gateway's Connection Manager (spec §4.2): it owns every
// live WebSocket connection, gates authentication, runs the heartbeat
// sweep, and hands authenticated, non-heartbeat frames to a FrameRouter.
//
// Grounded on the teacher's internal/websocket/hub.go: a single map
// mutated only under the hub's own lock (never from reader/writer
// goroutines directly), a register/unregister pair of methods, and a
// ticker-driven sweep goroutine started once in Run.
type Manager struct {
	opts      Options
	upgrader  websocket.Upgrader
	codec     *wire.Codec
	credStore credential.Store
	reg       registry.Registry
	limiter   ratelimit.Limiter
	router    FrameRouter

	mu      sync.RWMutex
	byID    map[string]*Connection
	byMud   map[string]*Connection

	subMu       sync.RWMutex
	subscribers []func(Event)

	stop chan struct{}
}

func New(opts Options, codec *wire.Codec, credStore credential.Store, reg registry.Registry, limiter ratelimit.Limiter) *Manager {
	return &Manager{
		opts:      opts.withDefaults(),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		codec:     codec,
		credStore: credStore,
		reg:       reg,
		limiter:   limiter,
		byID:      make(map[string]*Connection),
		byMud:     make(map[string]*Connection),
		stop:      make(chan struct{}),
	}
}

// SetRouter wires the Router in after construction, breaking the
// Manager/Router initialization cycle at startup (cmd/gatewayd builds the
// Manager first since the Router needs it to look up destinations).
func (m *Manager) SetRouter(r FrameRouter) {
	m.router = r
}

// Run starts the heartbeat sweep. It blocks until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) Stop() {
	close(m.stop)
}

// sweep closes connections that have missed the staleness deadline and
// pings everything still alive, mirroring the teacher's hub.pingAll.
func (m *Manager) sweep() {
	now := time.Now()
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byID))
	for _, c := range m.byID {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if now.Sub(c.LastSeenAt()) > m.opts.StaleAfter {
			c.mu.Lock()
			c.state = StateStale
			c.mu.Unlock()
			logging.Connection().Info().Str("conn", c.ID).Str("mud", c.MudName()).Msg("connection stale, closing")
			m.unregister(c)
			c.Close()
			continue
		}
		_ = c.conn.WriteControl(websocket.PingMessage, nil, now.Add(5*time.Second))
	}
}

// ServeHTTP upgrades an incoming request to a WebSocket and spawns the
// connection's reader and writer. Grounded on the teacher's
// agent_hub.ServeWs: admission check first, then upgrade, then pump spawn.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := clientHost(r)
	if !m.limiter.AdmitConnection(host) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	wsConn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Connection().Warn().Err(err).Str("host", host).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(uuid.New().String(), wsConn, host)
	m.mu.Lock()
	m.byID[conn.ID] = conn
	m.mu.Unlock()

	logging.Connection().Info().Str("conn", conn.ID).Str("host", host).Msg("connection accepted")

	go m.writePump(conn)
	go m.readPump(conn)
	go m.enforceAuthGrace(conn)
}

func clientHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (m *Manager) enforceAuthGrace(conn *Connection) {
	timer := time.NewTimer(m.opts.AuthGracePeriod)
	defer timer.Stop()
	select {
	case <-timer.C:
		if !conn.Authenticated() {
			logging.Connection().Info().Str("conn", conn.ID).Msg("auth grace period expired")
			m.unregister(conn)
			conn.Close()
		}
	case <-conn.closed:
	}
}

// Lookup returns the authenticated connection for mudName, if any.
func (m *Manager) Lookup(mudName string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byMud[mudName]
	return c, ok
}

// All returns a snapshot of every authenticated connection.
func (m *Manager) All() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.byMud))
	for _, c := range m.byMud {
		out = append(out, c)
	}
	return out
}

// Count reports the number of live connections (authenticated or not), for
// the admin surface's /stats endpoint.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *Manager) unregister(conn *Connection) {
	m.mu.Lock()
	delete(m.byID, conn.ID)
	mud := conn.MudName()
	if mud != "" {
		if current, ok := m.byMud[mud]; ok && current == conn {
			delete(m.byMud, mud)
		}
	}
	m.mu.Unlock()

	if mud == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.reg.SetRemove(ctx, registry.KeyConnectedMuds, mud); err != nil {
		logging.Registry().Warn().Err(err).Str("mud", mud).Msg("failed to remove peer from registry set")
	}
	if err := m.reg.Delete(ctx, registry.MudInfoKey(mud)); err != nil {
		logging.Registry().Warn().Err(err).Str("mud", mud).Msg("failed to delete peer info from registry")
	}
	if forgetter, ok := m.limiter.(peerForgetter); ok {
		forgetter.ForgetPeer(mud)
	}
	m.publish(Event{Type: EventDisconnected, MudName: mud, Host: conn.Host()})
}

func (m *Manager) writePump(conn *Connection) {
	for frame := range conn.send {
		if err := conn.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			logging.Connection().Debug().Err(err).Str("conn", conn.ID).Msg("write failed, closing")
			m.unregister(conn)
			conn.Close()
			return
		}
	}
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.unregister(conn)
		conn.Close()
	}()

	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}
		conn.touch()

		env, decErr := m.codec.Decode(raw)
		if decErr != nil {
			m.replyError(conn, wire.Envelope{}, gatewayErrorForDecode(decErr, len(raw), m.codec.MaxFrameBytes))
			if !conn.Authenticated() && m.recordViolationAndMaybeClose(conn) {
				return
			}
			continue
		}

		if !conn.Authenticated() {
			if env.Type != wire.KindAuth {
				m.replyError(conn, env, gwerrors.Unauthorized())
				if m.recordViolationAndMaybeClose(conn) {
					return
				}
				continue
			}
			if !m.handleAuth(conn, env) {
				return
			}
			continue
		}

		if env.IsExpired(time.Now()) {
			logging.Router().Debug().Str("id", env.ID).Msg("dropping expired frame")
			continue
		}

		switch env.Type {
		case wire.KindPing:
			m.replyPong(conn, env)
			continue
		case wire.KindPong:
			continue
		case wire.KindAuth:
			// Already authenticated; a second auth frame is ignored and
			// no reply is sent.
			continue
		}

		if !m.limiter.AdmitMessage(conn.MudName(), string(env.Type)) {
			m.replyError(conn, env, gwerrors.RateLimited(string(env.Type)))
			continue
		}

		conn.incrementMessageCount()
		if m.router != nil {
			m.router.Route(context.Background(), conn, env)
		}
	}
}

// gatewayErrorForDecode maps a wire decode failure to its distinct error
// code (spec §6/§7): 1010 for an oversized frame, 1009 for an unsupported
// protocol version, 1000 for every other schema violation.
func gatewayErrorForDecode(decErr *wire.DecodeError, size, max int) *gwerrors.GatewayError {
	switch {
	case decErr.Kind == wire.TooLarge:
		return gwerrors.MessageTooLarge(size, max)
	case decErr.Kind == wire.SchemaViolation && decErr.Field == "version":
		return gwerrors.UnsupportedVersion(decErr.Reason)
	default:
		return gwerrors.InvalidMessage(decErr.Error())
	}
}

func (m *Manager) recordViolationAndMaybeClose(conn *Connection) bool {
	if conn.recordAuthViolation() >= m.opts.MaxAuthViolations {
		logging.Connection().Info().Str("conn", conn.ID).Msg("too many pre-auth violations, closing")
		return true
	}
	return false
}

func (m *Manager) replyError(conn *Connection, replyTo wire.Envelope, gerr *gwerrors.GatewayError) {
	frame := wire.ErrorFrame(replyTo, gerr)
	raw, err := m.codec.Encode(frame)
	if err != nil {
		logging.Connection().Error().Err(err).Msg("failed to encode error frame")
		return
	}
	conn.Send(raw)
}

func (m *Manager) replyPong(conn *Connection, ping wire.Envelope) {
	pong := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      wire.KindPong,
		From:      wire.Endpoint{Mud: wire.GatewayMud},
		To:        ping.From,
		Payload:   map[string]any{"timestamp": ping.Payload["timestamp"]},
		Metadata:  wire.Metadata{Priority: 1, TTL: 30},
	}
	raw, err := m.codec.Encode(pong)
	if err != nil {
		return
	}
	conn.Send(raw)
}
