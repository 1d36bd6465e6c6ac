// Package router implements the gateway's Router (spec §4.3): the single
// entry point for every authenticated, non-heartbeat frame, applying the
// decision tree that sorts a frame into broadcast, Gateway-Handled Ops,
// channel dispatch, or unicast forward.
//
// Grounded on the teacher's internal/websocket/agent_hub.go
// SendCommandToAgent (single-target send, target-not-found handling) and
// BroadcastToAllAgents (concurrent fan-out, one slow peer isolated from the
// rest), generalized from agent/platform commands to peer-to-peer MUD
// envelopes.
package router

import (
	"context"

	"github.com/mudmesh/gateway/internal/channel"
	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/gatewayops"
	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

// PeerTable is the subset of *connmgr.Manager the Router depends on to
// resolve unicast/broadcast destinations.
type PeerTable interface {
	Lookup(mudName string) (*connmgr.Connection, bool)
	All() []*connmgr.Connection
}

// Router wires the Connection Manager, Channel Service, and
// Gateway-Handled Ops together. It satisfies connmgr.FrameRouter.
type Router struct {
	peers    PeerTable
	channels *channel.Service
	ops      *gatewayops.Handler
	codec    *wire.Codec
	reg      registry.Registry
	ringCap  int
}

// New builds a Router. historyRingSize is the per-kind history ring cap
// (spec §6 `historyRingSize`); a value <= 0 falls back to
// defaultHistoryRingCap.
func New(peers PeerTable, channels *channel.Service, ops *gatewayops.Handler, codec *wire.Codec, reg registry.Registry, historyRingSize int) *Router {
	if historyRingSize <= 0 {
		historyRingSize = defaultHistoryRingCap
	}
	r := &Router{peers: peers, channels: channels, ops: ops, codec: codec, reg: reg, ringCap: historyRingSize}
	channels.Subscribe(r.onMessagePosted)
	return r
}

// Route implements connmgr.FrameRouter.
func (r *Router) Route(ctx context.Context, from *connmgr.Connection, env wire.Envelope) {
	// Rule 1: overwrite from.mud with the authenticated identity. This is
	// the sole defense against from-field spoofing and is never skipped,
	// even for the channel-kind dispatch below.
	env.From.Mud = from.MudName()

	if env.Type == wire.KindChannel {
		r.routeChannelKind(ctx, from, env)
		appendHistory(ctx, r.reg, r.codec, env, r.ringCap)
		return
	}

	switch {
	case env.To.Mud == wire.BroadcastMud:
		r.broadcast(from, env)
	case env.To.Mud == wire.GatewayMud:
		r.dispatchGateway(from, env)
	default:
		r.unicast(from, env)
	}

	appendHistory(ctx, r.reg, r.codec, env, r.ringCap)
}

// broadcast enqueues env for every authenticated connection except the
// sender. Each send is independent: a full send buffer on one peer is
// logged and does not affect delivery to any other peer (spec §4.3 step 2).
func (r *Router) broadcast(from *connmgr.Connection, env wire.Envelope) {
	raw, err := r.codec.Encode(env)
	if err != nil {
		logging.Router().Error().Err(err).Msg("failed to encode broadcast envelope")
		return
	}
	for _, peer := range r.peers.All() {
		if peer == from {
			continue
		}
		if !peer.Send(raw) {
			logging.Router().Warn().Str("peer", peer.MudName()).Msg("dropped broadcast frame: send buffer full")
		}
	}
}

// unicast resolves env.To.Mud by case-sensitive lookup and forwards
// verbatim, or replies MudNotFound if absent (spec §4.3 step 4).
func (r *Router) unicast(from *connmgr.Connection, env wire.Envelope) {
	target, ok := r.peers.Lookup(env.To.Mud)
	if !ok {
		r.replyError(from, env, gwerrors.MudNotFound(env.To.Mud))
		return
	}
	raw, err := r.codec.Encode(env)
	if err != nil {
		logging.Router().Error().Err(err).Msg("failed to encode unicast envelope")
		return
	}
	if !target.Send(raw) {
		logging.Router().Warn().Str("peer", target.MudName()).Msg("dropped unicast frame: send buffer full")
	}
}

// dispatchGateway hands env to the Gateway-Handled Ops and replies with
// the synthesized response, or a protocol error for an unsupported kind
// (spec §4.3 step 3, §4.4).
func (r *Router) dispatchGateway(from *connmgr.Connection, env wire.Envelope) {
	reply, gerr := r.ops.Handle(env)
	if gerr != nil {
		r.replyError(from, env, gerr)
		return
	}
	raw, err := r.codec.Encode(reply)
	if err != nil {
		logging.Router().Error().Err(err).Msg("failed to encode gateway-ops reply")
		return
	}
	from.Send(raw)
}

func (r *Router) replyError(to *connmgr.Connection, replyTo wire.Envelope, gerr *gwerrors.GatewayError) {
	frame := wire.ErrorFrame(replyTo, gerr)
	raw, err := r.codec.Encode(frame)
	if err != nil {
		logging.Router().Error().Err(err).Msg("failed to encode error frame")
		return
	}
	to.Send(raw)
}
