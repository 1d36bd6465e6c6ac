// Package gatewayops implements the gateway's Gateway-Handled Ops (spec
// §4.4): the four introspective queries the gateway answers itself rather
// than forwarding — who, mudlist, channels, and locate.
//
// Grounded on the teacher's internal/handlers query-handler shape (parse
// request, read state, build a typed response struct) generalized from
// HTTP JSON handlers to WebSocket reply-envelope synthesis.
package gatewayops

import (
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mudmesh/gateway/internal/channel"
	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/wire"
)

// PeerSource is the subset of *connmgr.Manager the Gateway-Handled Ops
// depend on, kept as an interface so this package can be unit-tested
// without spinning up real WebSocket connections.
type PeerSource interface {
	All() []*connmgr.Connection
}

// ChannelSource is the subset of *channel.Service needed for the
// `channels` query.
type ChannelSource interface {
	List() []channel.Summary
}

// Handler answers the four Gateway-Handled Ops kinds.
type Handler struct {
	peers    PeerSource
	channels ChannelSource
}

func NewHandler(peers PeerSource, channels ChannelSource) *Handler {
	return &Handler{peers: peers, channels: channels}
}

// Handle dispatches env (already routed to mud == "Gateway") to the
// matching query, returning the synthesized reply envelope. A kind this
// handler doesn't recognize is a protocol error (spec §6, code 1008).
func (h *Handler) Handle(env wire.Envelope) (wire.Envelope, *gwerrors.GatewayError) {
	switch env.Type {
	case wire.KindWho:
		return h.who(env), nil
	case wire.KindMudlist:
		return h.mudlist(env), nil
	case wire.KindChannels:
		return h.channelsList(env), nil
	case wire.KindLocate:
		return h.locate(env), nil
	default:
		return wire.Envelope{}, gwerrors.ProtocolError("unsupported kind addressed to Gateway: " + string(env.Type))
	}
}

func replyEnvelope(env wire.Envelope, payload map[string]any) wire.Envelope {
	return wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      env.Type,
		From:      wire.Endpoint{Mud: wire.GatewayMud},
		To:        env.From,
		Payload:   payload,
		Metadata:  wire.Metadata{Priority: env.Metadata.Priority, TTL: env.Metadata.TTL},
	}
}

// who synthesizes the peer-list response (spec §4.4). The location field
// intentionally carries only the peer's network host, never in-game
// location, per the privacy note in spec §6.
func (h *Handler) who(env wire.Envelope) wire.Envelope {
	now := time.Now()
	type userRecord struct {
		Username string   `json:"username"`
		Location string   `json:"location"`
		Idle     int64    `json:"idle"`
		Flags    []string `json:"flags"`
	}

	peers := h.peers.All()
	records := make([]userRecord, 0, len(peers))
	for _, p := range peers {
		records = append(records, userRecord{
			Username: p.MudName(),
			Location: p.Host(),
			Idle:     int64(now.Sub(p.LastSeenAt()).Seconds()),
			Flags:    []string{"mud", "system"},
		})
	}

	switch env.PayloadStringOr("sort", "alpha") {
	case "idle":
		sort.Slice(records, func(i, j int) bool { return records[i].Idle < records[j].Idle })
	case "level":
		// No level field exists for peers; sort is stable (input order preserved).
	case "random":
		rand.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	default:
		sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })
	}

	users := make([]any, len(records))
	for i, r := range records {
		users[i] = r
	}
	return replyEnvelope(env, map[string]any{"request": false, "users": users})
}

// mudlist synthesizes the richer per-peer response (spec §4.4).
func (h *Handler) mudlist(env wire.Envelope) wire.Envelope {
	now := time.Now()
	type mudRecord struct {
		Name    string `json:"name"`
		Host    string `json:"host"`
		Version string `json:"version"`
		Uptime  int64  `json:"uptime"`
	}

	peers := h.peers.All()
	records := make([]any, 0, len(peers))
	for _, p := range peers {
		records = append(records, mudRecord{
			Name:    p.MudName(),
			Host:    p.Host(),
			Version: p.Version(),
			Uptime:  int64(now.Sub(p.ConnectedAt()).Seconds()),
		})
	}
	return replyEnvelope(env, map[string]any{"request": false, "muds": records})
}

// channelsList synthesizes the known-channels response (spec §4.4).
func (h *Handler) channelsList(env wire.Envelope) wire.Envelope {
	type channelRecord struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		MemberCount int      `json:"memberCount"`
		Flags       []string `json:"flags"`
	}

	summaries := h.channels.List()
	records := make([]any, 0, len(summaries))
	for _, s := range summaries {
		flags := []string{}
		if s.Restricted {
			flags = append(flags, "restricted")
		}
		records = append(records, channelRecord{
			Name:        s.Name,
			Description: s.Description,
			MemberCount: s.MemberCount,
			Flags:       flags,
		})
	}
	return replyEnvelope(env, map[string]any{"request": false, "channels": records})
}

// locate deliberately preserves the documented source behavior (spec §9):
// the gateway cannot see individual user presence on remote MUDs, so it
// returns one {mud, online:true} record per currently-authenticated peer
// and leaves per-user resolution to the requester.
func (h *Handler) locate(env wire.Envelope) wire.Envelope {
	type locateRecord struct {
		Mud    string `json:"mud"`
		Online bool   `json:"online"`
	}

	peers := h.peers.All()
	records := make([]any, 0, len(peers))
	for _, p := range peers {
		records = append(records, locateRecord{Mud: p.MudName(), Online: true})
	}
	return replyEnvelope(env, map[string]any{"request": false, "locations": records})
}
