// Package ratelimit implements the gateway's Rate Limiter (spec §4.1 table,
// §6 configuration surface): per-peer token buckets by message kind, plus a
// per-IP connection-admission bucket.
//
// Grounded on the teacher's internal/middleware/ratelimit.go
// (golang.org/x/time/rate token buckets keyed by string, with a periodic
// cleanup goroutine bounding map growth), generalized from per-IP HTTP
// request limiting to per-peer, per-kind WebSocket frame limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits mirrors spec §6's rateLimit.* configuration block.
type Limits struct {
	MessagesPerMinute   int
	TellsPerMinute      int
	ChannelsPerMinute   int
	ConnectPerIPPerMinute int
}

// DefaultLimits matches the defaults spec §6 documents.
func DefaultLimits() Limits {
	return Limits{
		MessagesPerMinute:     100,
		TellsPerMinute:        30,
		ChannelsPerMinute:     50,
		ConnectPerIPPerMinute: 10,
	}
}

// Limiter is the Rate Limiter contract (spec §4.1): admit a connection
// attempt from a host, and admit a message of a given kind from an
// authenticated peer.
type Limiter interface {
	AdmitConnection(host string) bool
	AdmitMessage(peerID string, kind string) bool
}

// TokenBucketLimiter implements Limiter with one overall bucket and one
// kind-specific bucket per peer, plus one bucket per connecting IP. A
// peer's buckets are dropped by ForgetPeer when it disconnects; the
// per-IP connect buckets are cleared all at once by a periodic check
// whenever they exceed 10000 entries — the same cleanup-goroutine strategy
// the teacher's RateLimiter.cleanupRoutine uses.
type TokenBucketLimiter struct {
	limits Limits

	mu            sync.Mutex
	perPeerOverall map[string]*rate.Limiter
	perPeerKind    map[string]*rate.Limiter // key: peerID + ":" + kind
	perIPConnect   map[string]*rate.Limiter

	cleanupInterval time.Duration
	stop            chan struct{}
}

// NewTokenBucketLimiter builds a limiter with the given limits and starts
// its background cleanup goroutine. Call Stop to release it.
func NewTokenBucketLimiter(limits Limits) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		limits:          limits,
		perPeerOverall:  make(map[string]*rate.Limiter),
		perPeerKind:     make(map[string]*rate.Limiter),
		perIPConnect:    make(map[string]*rate.Limiter),
		cleanupInterval: 10 * time.Minute,
		stop:            make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *TokenBucketLimiter) Stop() {
	close(l.stop)
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

func (l *TokenBucketLimiter) AdmitConnection(host string) bool {
	l.mu.Lock()
	lim, ok := l.perIPConnect[host]
	if !ok {
		lim = rate.NewLimiter(perMinute(l.limits.ConnectPerIPPerMinute), l.limits.ConnectPerIPPerMinute)
		l.perIPConnect[host] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// AdmitMessage checks both the peer's overall bucket and its per-kind
// bucket; both must have capacity. kind-specific buckets exist for "tell"
// and "channel" per spec §6; any other kind is accounted only against the
// overall bucket.
func (l *TokenBucketLimiter) AdmitMessage(peerID string, kind string) bool {
	overall := l.overallLimiterFor(peerID)
	if !overall.Allow() {
		return false
	}

	kindLimit, hasKindLimit := l.kindLimitFor(kind)
	if !hasKindLimit {
		return true
	}

	kindLimiter := l.kindLimiterFor(peerID, kind, kindLimit)
	return kindLimiter.Allow()
}

func (l *TokenBucketLimiter) kindLimitFor(kind string) (int, bool) {
	switch kind {
	case "tell":
		return l.limits.TellsPerMinute, true
	case "channel":
		return l.limits.ChannelsPerMinute, true
	default:
		return 0, false
	}
}

func (l *TokenBucketLimiter) overallLimiterFor(peerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perPeerOverall[peerID]
	if !ok {
		lim = rate.NewLimiter(perMinute(l.limits.MessagesPerMinute), l.limits.MessagesPerMinute)
		l.perPeerOverall[peerID] = lim
	}
	return lim
}

func (l *TokenBucketLimiter) kindLimiterFor(peerID, kind string, limit int) *rate.Limiter {
	key := peerID + ":" + kind
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perPeerKind[key]
	if !ok {
		lim = rate.NewLimiter(perMinute(limit), limit)
		l.perPeerKind[key] = lim
	}
	return lim
}

// ForgetPeer drops a disconnected peer's buckets immediately; it is called
// by the Connection Manager on cleanup and is the only place peer buckets
// are removed (the periodic check touches only the per-IP map).
func (l *TokenBucketLimiter) ForgetPeer(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.perPeerOverall, peerID)
	for key := range l.perPeerKind {
		if len(key) > len(peerID) && key[:len(peerID)+1] == peerID+":" {
			delete(l.perPeerKind, key)
		}
	}
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			if len(l.perIPConnect) > 10000 {
				l.perIPConnect = make(map[string]*rate.Limiter)
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
