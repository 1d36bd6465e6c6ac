// Package maintenance runs the gateway's periodic registry upkeep:
// refreshing the connected-peer set's TTL-backed entries and trimming
// history rings that may have drifted past their cap during a brief race
// window (spec §7 invariant 9 allows such a window but expects it closed
// promptly).
//
// Grounded on the teacher's internal/plugins/scheduler.go use of
// robfig/cron/v3 (a single shared *cron.Cron instance, jobs added with
// AddFunc, started once and stopped on shutdown) adapted from per-plugin
// job registration to the gateway's own fixed maintenance jobs.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/registry"
)

// PeerTable is the subset of *connmgr.Manager the refresh job needs.
type PeerTable interface {
	All() []*connmgr.Connection
}

// Scheduler owns the gateway's background cron jobs.
type Scheduler struct {
	cron  *cron.Cron
	reg   registry.Registry
	peers PeerTable

	peerTTL        time.Duration
	historyRingCap int
}

// New builds a Scheduler. peerTTL and historyRingCap mirror the same
// configuration (spec §6 `registryTTLSec`/`historyRingSize`) applied by
// connmgr.Options and router.New, so the periodic refresh/trim jobs stay
// consistent with the values the rest of the gateway was configured with.
// Values <= 0 fall back to the documented defaults (1 hour, 1000).
func New(reg registry.Registry, peers PeerTable, peerTTL time.Duration, historyRingCap int) *Scheduler {
	if peerTTL <= 0 {
		peerTTL = time.Hour
	}
	if historyRingCap <= 0 {
		historyRingCap = 1000
	}
	return &Scheduler{cron: cron.New(), reg: reg, peers: peers, peerTTL: peerTTL, historyRingCap: historyRingCap}
}

// Start schedules the refresh and sweep jobs and starts the cron runner.
// refreshSpec and sweepSpec are standard 5-field cron expressions; callers
// typically pass "*/1 * * * *" and "*/5 * * * *" respectively.
func (s *Scheduler) Start(refreshSpec, sweepSpec string) error {
	if _, err := s.cron.AddFunc(refreshSpec, s.refreshPeerTTLs); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.trimHistoryRings); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// refreshPeerTTLs re-writes each live peer's mud_info:<name> entry so it
// doesn't expire out from under a connection that's still alive but
// hasn't re-authenticated (the TTL exists to reap entries for peers that
// vanished without a clean disconnect, spec §4.7).
func (s *Scheduler) refreshPeerTTLs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := logging.Maintenance()
	for _, peer := range s.peers.All() {
		mud := peer.MudName()
		if mud == "" {
			continue
		}
		if err := s.reg.SetWithTTL(ctx, registry.MudInfoKey(mud), mud, s.peerTTL); err != nil {
			log.Warn().Err(err).Str("mud", mud).Msg("failed to refresh peer registry entry")
		}
	}
}

// trimHistoryRings re-trims every per-kind history ring to its cap,
// closing the brief race window spec §7 invariant 9 allows between a
// concurrent push and trim.
func (s *Scheduler) trimHistoryRings() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := logging.Maintenance()
	for _, kind := range []string{"tell", "emote", "emoteto", "channel", "who", "finger", "locate", "presence", "error", "mudlist", "channels"} {
		key := registry.MessageHistoryKey(kind)
		if err := s.reg.ListTrim(ctx, key, -s.historyRingCap, -1); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("failed to trim history ring")
		}
	}
}
