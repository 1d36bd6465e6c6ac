package connmgr

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

// handleAuth processes the first frame on a connection (spec §4.2, §6's
// auth handshake). It returns false if the connection should be torn down
// by the caller.
func (m *Manager) handleAuth(conn *Connection, env wire.Envelope) bool {
	mudName, _ := env.Payload["mudName"].(string)
	token, _ := env.Payload["token"].(string)
	version := env.PayloadStringOr("version", "")

	if !wire.ValidMudName(mudName) {
		suggestion := wire.SuggestMudName(mudName)
		logging.Auth().Info().Str("conn", conn.ID).Str("attempted", mudName).Msg("auth rejected: invalid mud name shape")
		m.replyError(conn, env, gwerrors.AuthFailed("invalid mud name", suggestion))
		return false
	}

	if !m.credStore.Validate(mudName, token) {
		logging.Auth().Info().Str("conn", conn.ID).Str("mud", mudName).Msg("auth rejected: credential invalid")
		m.replyError(conn, env, gwerrors.AuthFailed("invalid or missing credential", ""))
		return false
	}

	if !m.admitDuplicateName(conn, mudName) {
		logging.Auth().Info().Str("conn", conn.ID).Str("mud", mudName).Msg("auth rejected: name in use, policy reject-new")
		m.replyError(conn, env, gwerrors.AuthFailed("mud name already connected", ""))
		return false
	}

	conn.markAuthenticated(mudName, version)
	m.advertise(conn)
	m.publish(Event{Type: EventConnected, MudName: mudName, Host: conn.Host()})

	reply := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      wire.KindAuth,
		From:      wire.Endpoint{Mud: wire.GatewayMud},
		To:        wire.Endpoint{Mud: mudName},
		Payload: map[string]any{
			"mudName":  mudName,
			"response": "Authentication successful",
		},
		Metadata: wire.Metadata{Priority: 5, TTL: 60},
	}
	raw, err := m.codec.Encode(reply)
	if err != nil {
		logging.Auth().Error().Err(err).Msg("failed to encode auth success reply")
		return true
	}
	conn.Send(raw)
	logging.Auth().Info().Str("conn", conn.ID).Str("mud", mudName).Msg("authenticated")
	return true
}

// admitDuplicateName applies DuplicateNamePolicy when mudName is already
// claimed by a live connection (DESIGN.md, open question decision 4).
func (m *Manager) admitDuplicateName(conn *Connection, mudName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, collides := m.byMud[mudName]
	if !collides {
		m.byMud[mudName] = conn
		return true
	}

	switch m.opts.DuplicateNamePolicy {
	case PolicyRejectNew:
		return false
	case PolicyPreemptOld:
		m.byMud[mudName] = conn
		go func() {
			existing.Close()
		}()
		return true
	default: // PolicyAllow
		logging.Auth().Warn().Str("mud", mudName).Msg("duplicate mud name collision, allowing")
		m.byMud[mudName] = conn
		return true
	}
}

// advertise writes the peer's presence into the Registry so operator
// tooling and other gateway instances sharing the same store can see it.
// Routing decisions never depend on this succeeding (spec §4.7).
func (m *Manager) advertise(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mud := conn.MudName()
	if err := m.reg.SetAdd(ctx, registry.KeyConnectedMuds, mud); err != nil {
		logging.Registry().Warn().Err(err).Str("mud", mud).Msg("failed to advertise peer in connected set")
	}
	if err := m.reg.SetWithTTL(ctx, registry.MudInfoKey(mud), mud, m.opts.PeerRegistryTTL); err != nil {
		logging.Registry().Warn().Err(err).Str("mud", mud).Msg("failed to write peer info")
	}
}
