// Package channel implements the gateway's Channel Service (spec §4.5):
// per-channel membership, moderation lists, and bounded history for
// multi-peer channels.
//
// Grounded on the teacher's internal/websocket/notifier.go for the
// subscriber/event shape (a component mutates its own state, then calls
// into a list of registered listeners rather than publishing on a bus),
// adapted here to the Router's need to be told "this message was posted
// to channel X" so it can fan the frame out to every member connection.
// Channel errors (Banned, Restricted, NotMember) have no dedicated wire
// error code (spec §6 lists only the 1000-1010 table); they are treated
// as authorization denials and surfaced via gwerrors.CodeUnauthorized with
// a details.reason field distinguishing them, consistent with how the
// teacher's AppError carries a Details map for sub-classification within
// one status code.
package channel

import (
	"sync"
	"time"

	"github.com/mudmesh/gateway/internal/wire"
)

// defaultInMemoryHistoryCap is used when a Channel is constructed with a
// cap <= 0 (spec §6 `channelHistoryInMemory`, default 100).
const defaultInMemoryHistoryCap = 100

// Action describes an entry in a channel's history ring: either a chat
// message or a synthetic join/leave/ban notice.
type Action string

const (
	ActionMessage Action = "message"
	ActionJoin    Action = "join"
	ActionLeave   Action = "leave"
)

// HistoryEntry is one bounded-ring record.
type HistoryEntry struct {
	Action    Action
	From      wire.Endpoint
	Text      string
	Timestamp time.Time
}

// Channel is the in-memory representation of spec §3's Channel type.
type Channel struct {
	mu sync.RWMutex

	Name          string
	Description   string
	PasswordHash  string
	MudRestricted bool
	AllowedMuds   map[string]bool

	moderators map[string]bool // keyed by userKey
	banned     map[string]bool
	members    map[string]wire.Endpoint

	history    []HistoryEntry
	historyCap int
}

func newChannel(name, description string, historyCap int) *Channel {
	if historyCap <= 0 {
		historyCap = defaultInMemoryHistoryCap
	}
	return &Channel{
		Name:        name,
		Description: description,
		AllowedMuds: make(map[string]bool),
		moderators:  make(map[string]bool),
		banned:      make(map[string]bool),
		members:     make(map[string]wire.Endpoint),
		historyCap:  historyCap,
	}
}

// userKey identifies a user uniquely across MUDs; channels key membership,
// moderation, and bans by this composite rather than by user name alone,
// since the same username may exist on two different MUDs (spec §3).
func userKey(e wire.Endpoint) string {
	return e.Mud + "/" + e.User
}

func (c *Channel) isModerator(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.moderators[key]
}

func (c *Channel) isBanned(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.banned[key]
}

func (c *Channel) isMember(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[key]
	return ok
}

func (c *Channel) memberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// membersByMud groups current member endpoints by MUD, for the Router's
// fan-out on send (spec §4.5 "grouped by MUD").
func (c *Channel) membersByMud() map[string][]wire.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]wire.Endpoint)
	for _, ep := range c.members {
		out[ep.Mud] = append(out[ep.Mud], ep)
	}
	return out
}

func (c *Channel) allowsMud(mud string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.MudRestricted {
		return true
	}
	return c.AllowedMuds[mud]
}

func (c *Channel) appendHistory(entry HistoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, entry)
	if len(c.history) > c.historyCap {
		c.history = c.history[len(c.history)-c.historyCap:]
	}
}

// History returns a snapshot of the in-memory ring, oldest first.
func (c *Channel) History() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}
