package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mudmesh/gateway/internal/channel"
	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/wire"
)

// routeChannelKind dispatches a `channel` kind frame to the Channel
// Service (spec §4.5) rather than through the broadcast/unicast/gateway
// decision tree: membership is channel-scoped, not connection-scoped, so
// delivery for a channel message is "every member, grouped by MUD" (done
// by onMessagePosted below) rather than "every connected peer" or "one
// named peer."
//
// payload.action selects the operation; its absence means "message" (spec
// §4.1's exhaustive channel payload schema). There is no wire-level
// "create" action (see DESIGN.md open question 2): joining a channel that
// doesn't yet exist creates it with the joiner as its sole moderator.
func (r *Router) routeChannelKind(ctx context.Context, from *connmgr.Connection, env wire.Envelope) {
	channelName, _ := env.Payload["channel"].(string)
	action := env.PayloadStringOr("action", "message")
	sender := wire.Endpoint{Mud: from.MudName(), User: env.From.User, DisplayName: env.From.DisplayName}

	switch action {
	case "join":
		r.handleJoin(ctx, from, env, channelName, sender)
	case "leave":
		if gerr := r.channels.Leave(ctx, channelName, sender); gerr != nil {
			r.replyError(from, env, gerr)
			return
		}
		r.ackChannel(from, env, channelName, "leave")
	case "list":
		r.handleList(from, env, channelName)
	default: // "message"
		if gerr := r.channels.Send(ctx, channelName, sender, env.PayloadStringOr("message", "")); gerr != nil {
			r.replyError(from, env, gerr)
		}
	}
}

func (r *Router) handleJoin(ctx context.Context, from *connmgr.Connection, env wire.Envelope, channelName string, sender wire.Endpoint) {
	gerr := r.channels.Join(ctx, channelName, sender)
	if gerr != nil && gerr.Code == gwerrors.CodeChannelNotFound {
		if createErr := r.channels.Create(ctx, channelName, "", sender); createErr != nil {
			r.replyError(from, env, createErr)
			return
		}
		gerr = r.channels.Join(ctx, channelName, sender)
	}
	if gerr != nil {
		r.replyError(from, env, gerr)
		return
	}
	r.ackChannel(from, env, channelName, "join")
}

func (r *Router) handleList(from *connmgr.Connection, env wire.Envelope, channelName string) {
	members, gerr := r.channels.Members(channelName)
	if gerr != nil {
		r.replyError(from, env, gerr)
		return
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Mud+"/"+m.User)
	}
	reply := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      wire.KindChannel,
		From:      wire.Endpoint{Mud: wire.GatewayMud},
		To:        env.From,
		Payload:   map[string]any{"channel": channelName, "action": "list", "members": names},
		Metadata:  wire.Metadata{Priority: env.Metadata.Priority, TTL: env.Metadata.TTL},
	}
	raw, err := r.codec.Encode(reply)
	if err != nil {
		return
	}
	from.Send(raw)
}

func (r *Router) ackChannel(from *connmgr.Connection, env wire.Envelope, channelName, action string) {
	reply := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      wire.KindChannel,
		From:      wire.Endpoint{Mud: wire.GatewayMud},
		To:        env.From,
		Payload:   map[string]any{"channel": channelName, "action": action, "success": true},
		Metadata:  wire.Metadata{Priority: env.Metadata.Priority, TTL: env.Metadata.TTL},
	}
	raw, err := r.codec.Encode(reply)
	if err != nil {
		return
	}
	from.Send(raw)
}

// onMessagePosted fans a channel message out once to each MUD that has at
// least one current member, as spec §4.5's send operation requires; the
// sender's own MUD is not sent a copy. A MUD with no live connection is
// skipped, and a peer whose send buffer is full is skipped and logged,
// never allowed to block delivery to the rest (same isolation rule as
// broadcast).
func (r *Router) onMessagePosted(evt channel.MessagePosted) {
	env := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      wire.KindChannel,
		From:      wire.Endpoint{Mud: evt.From.Mud, User: evt.From.User, DisplayName: evt.From.DisplayName},
		To:        wire.Endpoint{Channel: evt.Channel},
		Payload:   map[string]any{"channel": evt.Channel, "action": "message", "message": evt.Text},
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}
	raw, err := r.codec.Encode(env)
	if err != nil {
		logging.Router().Error().Err(err).Msg("failed to encode channel fan-out envelope")
		return
	}

	for mud := range evt.MembersByMud {
		if mud == evt.From.Mud {
			continue
		}
		peer, ok := r.peers.Lookup(mud)
		if !ok {
			continue
		}
		if !peer.Send(raw) {
			logging.Router().Warn().Str("peer", mud).Str("channel", evt.Channel).Msg("dropped channel fan-out frame: send buffer full")
		}
	}
}
