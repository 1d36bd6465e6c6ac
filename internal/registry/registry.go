// Package registry abstracts the durable K/V + set + list store the
// gateway uses for the peer registry, channel membership, and bounded
// message history (spec §4.7). The gateway never treats the registry as
// authoritative: every routing decision is made from in-memory state, and a
// failed registry write is logged and otherwise ignored (spec §4.7,
// "Failure policy").
package registry

import (
	"context"
	"time"
)

// Registry is the contract the Router, Connection Manager, and Channel
// Service depend on. Implementations are expected to be best-effort: a
// failed operation should return an error for logging, never panic, and
// never block its caller beyond the deadline baked into ctx.
type Registry interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	ListPush(ctx context.Context, key, value string) error
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "registry: key not found" }

// Keys used by the core (spec §4.7).
const (
	KeyConnectedMuds = "connected_muds"
	KeyActiveChannels = "active_channels"
)

func MudInfoKey(name string) string       { return "mud_info:" + name }
func MessageHistoryKey(kind string) string { return "message_history:" + kind }
func ChannelKey(name string) string        { return "channel:" + name }
func ChannelMembersKey(name string) string { return "channel_members:" + name }
func ChannelHistoryKey(name string) string { return "channel_history:" + name }
