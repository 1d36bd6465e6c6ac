package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmitConnection_BurstThenDeny(t *testing.T) {
	l := NewTokenBucketLimiter(Limits{ConnectPerIPPerMinute: 2, MessagesPerMinute: 100, TellsPerMinute: 30, ChannelsPerMinute: 50})
	defer l.Stop()

	assert.True(t, l.AdmitConnection("1.2.3.4"))
	assert.True(t, l.AdmitConnection("1.2.3.4"))
	assert.False(t, l.AdmitConnection("1.2.3.4"))
}

func TestAdmitMessage_PerKindBucket(t *testing.T) {
	l := NewTokenBucketLimiter(Limits{MessagesPerMinute: 1000, TellsPerMinute: 1, ChannelsPerMinute: 50, ConnectPerIPPerMinute: 10})
	defer l.Stop()

	assert.True(t, l.AdmitMessage("peer1", "tell"))
	assert.False(t, l.AdmitMessage("peer1", "tell"))
	// A different kind is unaffected by the exhausted tell bucket.
	assert.True(t, l.AdmitMessage("peer1", "emote"))
}

func TestAdmitMessage_OverallBucketGates(t *testing.T) {
	l := NewTokenBucketLimiter(Limits{MessagesPerMinute: 1, TellsPerMinute: 100, ChannelsPerMinute: 100, ConnectPerIPPerMinute: 10})
	defer l.Stop()

	assert.True(t, l.AdmitMessage("peer1", "tell"))
	assert.False(t, l.AdmitMessage("peer1", "emote"))
}

func TestForgetPeer(t *testing.T) {
	l := NewTokenBucketLimiter(Limits{MessagesPerMinute: 1, TellsPerMinute: 1, ChannelsPerMinute: 1, ConnectPerIPPerMinute: 10})
	defer l.Stop()

	assert.True(t, l.AdmitMessage("peer1", "tell"))
	l.ForgetPeer("peer1")
	// Fresh bucket after forgetting means the next call is allowed again.
	assert.True(t, l.AdmitMessage("peer1", "tell"))
}
