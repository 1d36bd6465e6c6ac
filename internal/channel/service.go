package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mudmesh/gateway/internal/gwerrors"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

// defaultPersistedHistoryCap is used when NewService is given a cap <= 0
// (spec §6's implicit registry-side bound, kept 10x the in-memory ring).
const defaultPersistedHistoryCap = 1000

// MessagePosted is emitted by Send on success so the Router can fan the
// frame out to every member connection grouped by MUD (spec §4.5).
type MessagePosted struct {
	Channel     string
	From        wire.Endpoint
	Text        string
	MembersByMud map[string][]wire.Endpoint
}

// reasoned builds an Unauthorized GatewayError carrying a details.reason
// field distinguishing Banned/Restricted/NotMember for the client, since
// spec §6's error table has no dedicated code for any of the three.
func reasoned(reason, message string) *gwerrors.GatewayError {
	return gwerrors.NewWithDetails(gwerrors.CodeUnauthorized, message, map[string]any{"reason": reason})
}

func errNotFound(name string) *gwerrors.GatewayError { return gwerrors.ChannelNotFound(name) }
func errBanned() *gwerrors.GatewayError               { return reasoned("Banned", "you are banned from this channel") }
func errRestricted() *gwerrors.GatewayError {
	return reasoned("Restricted", "your mud is not permitted in this channel")
}
func errNotMember() *gwerrors.GatewayError { return reasoned("NotMember", "you are not a member of this channel") }
func errAlreadyExists(name string) *gwerrors.GatewayError {
	return gwerrors.NewWithDetails(gwerrors.CodeInvalidMessage, fmt.Sprintf("channel %q already exists", name), nil)
}

// Service is the gateway's Channel Service (spec §4.5): channel lifecycle,
// membership, moderation, and history, backed by the Registry for
// persistence and by an in-process map for fast membership checks.
type Service struct {
	reg registry.Registry

	inMemoryHistoryCap  int
	persistedHistoryCap int

	mu       sync.RWMutex
	channels map[string]*Channel

	subMu       sync.RWMutex
	subscribers []func(MessagePosted)
}

// NewService builds a Channel Service. inMemoryHistoryCap and
// persistedHistoryCap configure the per-channel history ring sizes (spec §6
// `channelHistoryInMemory`, default 100, and its registry-side counterpart,
// default 1000); a value <= 0 falls back to the documented default.
func NewService(reg registry.Registry, inMemoryHistoryCap, persistedHistoryCap int) *Service {
	if inMemoryHistoryCap <= 0 {
		inMemoryHistoryCap = defaultInMemoryHistoryCap
	}
	if persistedHistoryCap <= 0 {
		persistedHistoryCap = defaultPersistedHistoryCap
	}
	return &Service{
		reg:                 reg,
		inMemoryHistoryCap:  inMemoryHistoryCap,
		persistedHistoryCap: persistedHistoryCap,
		channels:            make(map[string]*Channel),
	}
}

// Subscribe registers fn to be called whenever Send succeeds.
func (s *Service) Subscribe(fn func(MessagePosted)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Service) publish(evt MessagePosted) {
	s.subMu.RLock()
	subs := make([]func(MessagePosted), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(evt)
	}
}

func (s *Service) lookup(name string) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	return ch, ok
}

// Create registers a new channel with creator as its sole moderator (spec
// §9 open question 2: creation is reachable by any authenticated peer,
// gated only by name uniqueness — see DESIGN.md).
func (s *Service) Create(ctx context.Context, name, description string, creator wire.Endpoint) *gwerrors.GatewayError {
	s.mu.Lock()
	if _, exists := s.channels[name]; exists {
		s.mu.Unlock()
		return errAlreadyExists(name)
	}
	ch := newChannel(name, description, s.inMemoryHistoryCap)
	ch.moderators[userKey(creator)] = true
	s.channels[name] = ch
	s.mu.Unlock()

	s.persistMeta(ctx, ch)
	if err := s.reg.SetAdd(ctx, registry.KeyActiveChannels, name); err != nil {
		logging.Channel().Warn().Err(err).Str("channel", name).Msg("failed to advertise channel in active set")
	}
	logging.Channel().Info().Str("channel", name).Str("creator", userKey(creator)).Msg("channel created")
	return nil
}

// Join admits userEp to channel (spec §4.5). Idempotent on a member that
// joins again.
func (s *Service) Join(ctx context.Context, channelName string, userEp wire.Endpoint) *gwerrors.GatewayError {
	ch, ok := s.lookup(channelName)
	if !ok {
		return errNotFound(channelName)
	}
	key := userKey(userEp)
	if ch.isBanned(key) {
		return errBanned()
	}
	if !ch.allowsMud(userEp.Mud) {
		return errRestricted()
	}

	ch.mu.Lock()
	ch.members[key] = userEp
	ch.mu.Unlock()

	ch.appendHistory(HistoryEntry{Action: ActionJoin, From: userEp, Timestamp: time.Now().UTC()})
	s.persistMembership(ctx, ch, key, true)
	s.persistHistory(ctx, ch, HistoryEntry{Action: ActionJoin, From: userEp, Timestamp: time.Now().UTC()})
	return nil
}

// Leave removes userEp from channel. Idempotent: a second Leave call with
// nothing to remove still fails with NotMember, matching spec §4.5's
// explicit "fails with NotMember if absent" wording (idempotency applies
// to the membership-set mutation, not to the caller's observed result).
func (s *Service) Leave(ctx context.Context, channelName string, userEp wire.Endpoint) *gwerrors.GatewayError {
	ch, ok := s.lookup(channelName)
	if !ok {
		return errNotFound(channelName)
	}
	key := userKey(userEp)
	if !ch.isMember(key) {
		return errNotMember()
	}

	ch.mu.Lock()
	delete(ch.members, key)
	ch.mu.Unlock()

	ch.appendHistory(HistoryEntry{Action: ActionLeave, From: userEp, Timestamp: time.Now().UTC()})
	s.persistMembership(ctx, ch, key, false)
	s.persistHistory(ctx, ch, HistoryEntry{Action: ActionLeave, From: userEp, Timestamp: time.Now().UTC()})
	return nil
}

// Send posts text to channel on behalf of from. On success it publishes a
// MessagePosted event for the Router to fan out.
func (s *Service) Send(ctx context.Context, channelName string, from wire.Endpoint, text string) *gwerrors.GatewayError {
	ch, ok := s.lookup(channelName)
	if !ok {
		return errNotFound(channelName)
	}
	key := userKey(from)
	if ch.isBanned(key) {
		return errBanned()
	}
	if !ch.isMember(key) {
		return errNotMember()
	}

	entry := HistoryEntry{Action: ActionMessage, From: from, Text: text, Timestamp: time.Now().UTC()}
	ch.appendHistory(entry)
	s.persistHistory(ctx, ch, entry)

	s.publish(MessagePosted{
		Channel:      channelName,
		From:         from,
		Text:         text,
		MembersByMud: ch.membersByMud(),
	})
	return nil
}

// Ban adds targetKey to channel's banned list and evicts the target if
// currently a member. moderator must already be a moderator of channel.
func (s *Service) Ban(ctx context.Context, channelName string, target wire.Endpoint, moderator wire.Endpoint) *gwerrors.GatewayError {
	ch, ok := s.lookup(channelName)
	if !ok {
		return errNotFound(channelName)
	}
	if !ch.isModerator(userKey(moderator)) {
		return reasoned("NotModerator", "only a channel moderator may ban")
	}

	key := userKey(target)
	ch.mu.Lock()
	ch.banned[key] = true
	delete(ch.members, key)
	ch.mu.Unlock()

	s.persistMembership(ctx, ch, key, false)
	s.persistMeta(ctx, ch)
	logging.Channel().Info().Str("channel", channelName).Str("target", key).Str("moderator", userKey(moderator)).Msg("user banned")
	return nil
}

// ChannelCount reports how many channels currently exist, for the admin
// surface's /stats endpoint.
func (s *Service) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// List returns every known channel's summary for gatewayops' channels query.
func (s *Service) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, Summary{
			Name:        ch.Name,
			Description: ch.Description,
			MemberCount: ch.memberCount(),
			Restricted:  ch.MudRestricted,
		})
	}
	return out
}

// Summary is the shape the Gateway-Handled Ops `channels` query reports.
type Summary struct {
	Name        string
	Description string
	MemberCount int
	Restricted  bool
}

// Members returns the current member endpoints of channel, for the wire
// `channel` kind's action="list" reply. Returns ChannelNotFound if channel
// doesn't exist.
func (s *Service) Members(channelName string) ([]wire.Endpoint, *gwerrors.GatewayError) {
	ch, ok := s.lookup(channelName)
	if !ok {
		return nil, errNotFound(channelName)
	}
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]wire.Endpoint, 0, len(ch.members))
	for _, ep := range ch.members {
		out = append(out, ep)
	}
	return out, nil
}

// persistMeta and persistMembership/persistHistory are best-effort: a
// registry write failure is logged and otherwise ignored, never surfaced
// to the channel operation's caller (spec §4.7 "Failure policy").
func (s *Service) persistMeta(ctx context.Context, ch *Channel) {
	blob, err := json.Marshal(struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		MudRestricted bool   `json:"mudRestricted"`
	}{ch.Name, ch.Description, ch.MudRestricted})
	if err != nil {
		return
	}
	if err := s.reg.SetWithTTL(ctx, registry.ChannelKey(ch.Name), string(blob), 0); err != nil {
		logging.Channel().Warn().Err(err).Str("channel", ch.Name).Msg("failed to persist channel metadata")
	}
}

func (s *Service) persistMembership(ctx context.Context, ch *Channel, key string, present bool) {
	var err error
	if present {
		err = s.reg.SetAdd(ctx, registry.ChannelMembersKey(ch.Name), key)
	} else {
		err = s.reg.SetRemove(ctx, registry.ChannelMembersKey(ch.Name), key)
	}
	if err != nil {
		logging.Channel().Warn().Err(err).Str("channel", ch.Name).Str("user", key).Msg("failed to persist channel membership")
	}
}

func (s *Service) persistHistory(ctx context.Context, ch *Channel, entry HistoryEntry) {
	blob, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := registry.ChannelHistoryKey(ch.Name)
	if err := s.reg.ListPush(ctx, key, string(blob)); err != nil {
		logging.Channel().Warn().Err(err).Str("channel", ch.Name).Msg("failed to persist channel history")
		return
	}
	if err := s.reg.ListTrim(ctx, key, -s.persistedHistoryCap, -1); err != nil {
		logging.Channel().Warn().Err(err).Str("channel", ch.Name).Msg("failed to trim channel history")
	}
}

// PurgeMud removes mud's users from every channel's membership, called by
// the Connection Manager's peerDisconnected event (spec §4.2 "Cleanup on
// close"). It does not distinguish individual users within the MUD since
// the Connection Manager only tracks one identity per socket.
func (s *Service) PurgeMud(ctx context.Context, mud string) {
	s.mu.RLock()
	channels := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.RUnlock()

	for _, ch := range channels {
		ch.mu.Lock()
		for key, ep := range ch.members {
			if ep.Mud == mud {
				delete(ch.members, key)
				s.persistMembership(ctx, ch, key, false)
			}
		}
		ch.mu.Unlock()
	}
}
