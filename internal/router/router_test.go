package router

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudmesh/gateway/internal/channel"
	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/credential"
	"github.com/mudmesh/gateway/internal/gatewayops"
	"github.com/mudmesh/gateway/internal/ratelimit"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

type testGateway struct {
	srv *httptest.Server
	mgr *connmgr.Manager
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	codec := wire.NewCodec(0)
	reg := registry.NewMemoryRegistry()
	limiter := ratelimit.NewTokenBucketLimiter(ratelimit.DefaultLimits())
	chSvc := channel.NewService(reg, 100, 1000)

	mgr := connmgr.New(connmgr.Options{}, codec, credential.OpenStore{}, reg, limiter)
	ops := gatewayops.NewHandler(mgr, chSvc)
	r := New(mgr, chSvc, ops, codec, reg, 1000)
	mgr.SetRouter(r)

	srv := httptest.NewServer(mgr)
	t.Cleanup(func() {
		srv.Close()
		limiter.Stop()
	})
	return &testGateway{srv: srv, mgr: mgr}
}

func (g *testGateway) dialAndAuth(t *testing.T, mudName string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        "11111111-1111-4111-8111-111111111111",
		Timestamp: time.Now().UTC(),
		Type:      wire.KindAuth,
		From:      wire.Endpoint{Mud: mudName},
		To:        wire.Endpoint{Mud: wire.GatewayMud},
		Payload:   map[string]any{"mudName": mudName},
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}))
	var reply wire.Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, wire.KindAuth, reply.Type)
	return conn
}

func tellFrame(fromMud, toMud, toUser string) wire.Envelope {
	return wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        "22222222-2222-4222-8222-222222222222",
		Timestamp: time.Now().UTC(),
		Type:      wire.KindTell,
		From:      wire.Endpoint{Mud: fromMud, User: "alice"},
		To:        wire.Endpoint{Mud: toMud, User: toUser},
		Payload:   map[string]any{"message": "hi there"},
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}
}

func TestUnicast_DeliversToTarget(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")
	b := g.dialAndAuth(t, "MudB")

	require.NoError(t, a.WriteJSON(tellFrame("MudA", "MudB", "bob")))

	var received wire.Envelope
	require.NoError(t, b.ReadJSON(&received))
	assert.Equal(t, "MudA", received.From.Mud)
	assert.Equal(t, "hi there", received.Payload["message"])
}

func TestUnicast_SpoofedFromIsOverwritten(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")
	b := g.dialAndAuth(t, "MudB")

	frame := tellFrame("MudA", "MudB", "bob")
	frame.From.Mud = "SomeoneElse"
	require.NoError(t, a.WriteJSON(frame))

	var received wire.Envelope
	require.NoError(t, b.ReadJSON(&received))
	assert.Equal(t, "MudA", received.From.Mud)
}

func TestUnicast_UnknownTargetRepliesMudNotFound(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")

	require.NoError(t, a.WriteJSON(tellFrame("MudA", "Ghost", "x")))

	var reply wire.Envelope
	require.NoError(t, a.ReadJSON(&reply))
	assert.Equal(t, wire.KindError, reply.Type)
	assert.Equal(t, float64(1003), reply.Payload["code"])
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")
	b := g.dialAndAuth(t, "MudB")
	c := g.dialAndAuth(t, "MudC")

	emote := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        "33333333-3333-4333-8333-333333333333",
		Timestamp: time.Now().UTC(),
		Type:      wire.KindEmote,
		From:      wire.Endpoint{Mud: "MudA"},
		To:        wire.Endpoint{Mud: wire.BroadcastMud},
		Payload:   map[string]any{"action": "waves"},
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}
	require.NoError(t, a.WriteJSON(emote))

	var fromB, fromC wire.Envelope
	require.NoError(t, b.ReadJSON(&fromB))
	require.NoError(t, c.ReadJSON(&fromC))
	assert.Equal(t, "waves", fromB.Payload["action"])
	assert.Equal(t, "waves", fromC.Payload["action"])

	a.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var shouldTimeout wire.Envelope
	err := a.ReadJSON(&shouldTimeout)
	assert.Error(t, err)
}

func TestGatewayWho(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")
	g.dialAndAuth(t, "MudB")

	who := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        "44444444-4444-4444-8444-444444444444",
		Timestamp: time.Now().UTC(),
		Type:      wire.KindWho,
		From:      wire.Endpoint{Mud: "MudA"},
		To:        wire.Endpoint{Mud: wire.GatewayMud},
		Payload:   map[string]any{"request": true},
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}
	require.NoError(t, a.WriteJSON(who))

	var reply wire.Envelope
	require.NoError(t, a.ReadJSON(&reply))
	assert.Equal(t, wire.GatewayMud, reply.From.Mud)
	users, _ := reply.Payload["users"].([]any)
	assert.Len(t, users, 2)
}

func TestChannelJoinCreatesOnFirstUse(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")

	join := wire.Envelope{
		Version:   wire.ProtocolVersion,
		ID:        "55555555-5555-4555-8555-555555555555",
		Timestamp: time.Now().UTC(),
		Type:      wire.KindChannel,
		From:      wire.Endpoint{Mud: "MudA", User: "alice"},
		To:        wire.Endpoint{Mud: wire.GatewayMud, Channel: "lobby"},
		Payload:   map[string]any{"channel": "lobby", "action": "join"},
		Metadata:  wire.Metadata{Priority: 5, TTL: 60},
	}
	require.NoError(t, a.WriteJSON(join))

	var reply wire.Envelope
	require.NoError(t, a.ReadJSON(&reply))
	assert.Equal(t, wire.KindChannel, reply.Type)
	assert.Equal(t, true, reply.Payload["success"])
}

func TestChannelMessageFansOutToMembersOnly(t *testing.T) {
	g := newTestGateway(t)
	a := g.dialAndAuth(t, "MudA")
	b := g.dialAndAuth(t, "MudB")
	c := g.dialAndAuth(t, "MudC")

	joinAs := func(conn *websocket.Conn, mud string) {
		require.NoError(t, conn.WriteJSON(wire.Envelope{
			Version: wire.ProtocolVersion, ID: "66666666-6666-4666-8666-666666666666",
			Timestamp: time.Now().UTC(), Type: wire.KindChannel,
			From: wire.Endpoint{Mud: mud}, To: wire.Endpoint{Mud: wire.GatewayMud},
			Payload:  map[string]any{"channel": "lobby", "action": "join"},
			Metadata: wire.Metadata{Priority: 5, TTL: 60},
		}))
		var reply wire.Envelope
		require.NoError(t, conn.ReadJSON(&reply))
	}
	joinAs(a, "MudA")
	joinAs(b, "MudB")
	// MudC deliberately does not join.

	msg := wire.Envelope{
		Version: wire.ProtocolVersion, ID: "77777777-7777-4777-8777-777777777777",
		Timestamp: time.Now().UTC(), Type: wire.KindChannel,
		From: wire.Endpoint{Mud: "MudA"}, To: wire.Endpoint{Mud: wire.GatewayMud},
		Payload:  map[string]any{"channel": "lobby", "message": "hello lobby"},
		Metadata: wire.Metadata{Priority: 5, TTL: 60},
	}
	require.NoError(t, a.WriteJSON(msg))

	var received wire.Envelope
	require.NoError(t, b.ReadJSON(&received))
	assert.Equal(t, "hello lobby", received.Payload["message"])

	c.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var shouldTimeout wire.Envelope
	err := c.ReadJSON(&shouldTimeout)
	assert.Error(t, err)
}
