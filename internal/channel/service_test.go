package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

func newTestService() *Service {
	return NewService(registry.NewMemoryRegistry(), 100, 1000)
}

func TestCreateAndJoin(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	creator := wire.Endpoint{Mud: "MudA", User: "alice"}

	require.Nil(t, s.Create(ctx, "lobby", "general chat", creator))

	bob := wire.Endpoint{Mud: "MudB", User: "bob"}
	require.Nil(t, s.Join(ctx, "lobby", bob))

	summaries := s.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "lobby", summaries[0].Name)
}

func TestJoin_NotFound(t *testing.T) {
	s := newTestService()
	err := s.Join(context.Background(), "nope", wire.Endpoint{Mud: "MudA", User: "alice"})
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.CodeChannelNotFound, err.Code)
}

func TestSend_NotMember(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	creator := wire.Endpoint{Mud: "MudA", User: "alice"}
	require.Nil(t, s.Create(ctx, "lobby", "", creator))

	outsider := wire.Endpoint{Mud: "MudC", User: "eve"}
	err := s.Send(ctx, "lobby", outsider, "hi")
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.CodeUnauthorized, err.Code)
	assert.Equal(t, "NotMember", err.Details["reason"])
}

func TestSend_PublishesMessagePosted(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	alice := wire.Endpoint{Mud: "MudA", User: "alice"}
	bob := wire.Endpoint{Mud: "MudB", User: "bob"}
	require.Nil(t, s.Create(ctx, "lobby", "", alice))
	require.Nil(t, s.Join(ctx, "lobby", alice))
	require.Nil(t, s.Join(ctx, "lobby", bob))

	var captured MessagePosted
	s.Subscribe(func(evt MessagePosted) { captured = evt })

	require.Nil(t, s.Send(ctx, "lobby", bob, "hello"))
	assert.Equal(t, "hello", captured.Text)
	assert.Contains(t, captured.MembersByMud, "MudA")
	assert.Contains(t, captured.MembersByMud, "MudB")
}

func TestBanRemovesMemberAndBlocksRejoin(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	alice := wire.Endpoint{Mud: "MudA", User: "alice"}
	bob := wire.Endpoint{Mud: "MudB", User: "bob"}
	require.Nil(t, s.Create(ctx, "lobby", "", alice))
	require.Nil(t, s.Join(ctx, "lobby", bob))

	require.Nil(t, s.Ban(ctx, "lobby", bob, alice))

	err := s.Join(ctx, "lobby", bob)
	require.NotNil(t, err)
	assert.Equal(t, "Banned", err.Details["reason"])
}

func TestBan_RequiresModerator(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	alice := wire.Endpoint{Mud: "MudA", User: "alice"}
	bob := wire.Endpoint{Mud: "MudB", User: "bob"}
	eve := wire.Endpoint{Mud: "MudC", User: "eve"}
	require.Nil(t, s.Create(ctx, "lobby", "", alice))
	require.Nil(t, s.Join(ctx, "lobby", bob))
	require.Nil(t, s.Join(ctx, "lobby", eve))

	err := s.Ban(ctx, "lobby", bob, eve)
	require.NotNil(t, err)
	assert.Equal(t, "NotModerator", err.Details["reason"])
}

func TestMudRestricted(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	alice := wire.Endpoint{Mud: "MudA", User: "alice"}
	require.Nil(t, s.Create(ctx, "vip", "", alice))

	ch, _ := s.lookup("vip")
	ch.mu.Lock()
	ch.MudRestricted = true
	ch.AllowedMuds["MudA"] = true
	ch.mu.Unlock()

	bob := wire.Endpoint{Mud: "MudB", User: "bob"}
	err := s.Join(ctx, "vip", bob)
	require.NotNil(t, err)
	assert.Equal(t, "Restricted", err.Details["reason"])
}

func TestPurgeMud(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	alice := wire.Endpoint{Mud: "MudA", User: "alice"}
	bob := wire.Endpoint{Mud: "MudB", User: "bob"}
	require.Nil(t, s.Create(ctx, "lobby", "", alice))
	require.Nil(t, s.Join(ctx, "lobby", bob))

	s.PurgeMud(ctx, "MudB")

	err := s.Send(ctx, "lobby", bob, "hi")
	require.NotNil(t, err)
	assert.Equal(t, "NotMember", err.Details["reason"])
}
