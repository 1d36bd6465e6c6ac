package gatewayops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudmesh/gateway/internal/channel"
	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/wire"
)

type fakePeerSource struct {
	peers []*connmgr.Connection
}

func (f fakePeerSource) All() []*connmgr.Connection { return f.peers }

type fakeChannelSource struct {
	summaries []channel.Summary
}

func (f fakeChannelSource) List() []channel.Summary { return f.summaries }

func requestEnvelope(kind wire.Kind, payload map[string]any) wire.Envelope {
	return wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        "11111111-1111-4111-8111-111111111111",
		Type:      kind,
		From:      wire.Endpoint{Mud: "Requester"},
		To:        wire.Endpoint{Mud: wire.GatewayMud},
		Payload:   payload,
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}
}

func TestHandle_UnsupportedKind(t *testing.T) {
	h := NewHandler(fakePeerSource{}, fakeChannelSource{})
	_, err := h.Handle(requestEnvelope(wire.KindTell, map[string]any{"message": "hi"}))
	require.NotNil(t, err)
}

func TestChannelsList(t *testing.T) {
	h := NewHandler(fakePeerSource{}, fakeChannelSource{summaries: []channel.Summary{
		{Name: "lobby", Description: "general", MemberCount: 3},
		{Name: "vip", Restricted: true, MemberCount: 1},
	}})

	reply, err := h.Handle(requestEnvelope(wire.KindChannels, map[string]any{"request": true}))
	require.Nil(t, err)
	assert.Equal(t, wire.GatewayMud, reply.From.Mud)
	channels, ok := reply.Payload["channels"].([]any)
	require.True(t, ok)
	assert.Len(t, channels, 2)
}

func TestLocate_ReturnsOnePerConnectedPeer(t *testing.T) {
	h := NewHandler(fakePeerSource{peers: []*connmgr.Connection{{ID: "a"}, {ID: "b"}}}, fakeChannelSource{})
	reply, err := h.Handle(requestEnvelope(wire.KindLocate, map[string]any{"user": "bob", "request": true}))
	require.Nil(t, err)
	locations, ok := reply.Payload["locations"].([]any)
	require.True(t, ok)
	assert.Len(t, locations, 2)
}

func TestWho_ReplyCarriesUsers(t *testing.T) {
	h := NewHandler(fakePeerSource{}, fakeChannelSource{})
	reply, err := h.Handle(requestEnvelope(wire.KindWho, map[string]any{"request": true}))
	require.Nil(t, err)
	_, ok := reply.Payload["users"]
	assert.True(t, ok)
}
