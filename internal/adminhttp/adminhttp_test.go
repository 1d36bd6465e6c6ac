package adminhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudmesh/gateway/internal/connmgr"
)

type fakePeers struct{}

func (fakePeers) Count() int                          { return 3 }
func (fakePeers) All() []*connmgr.Connection          { return nil }

type fakeChannels struct{}

func (fakeChannels) ChannelCount() int { return 2 }

func TestHealthz(t *testing.T) {
	s := New(fakePeers{}, fakeChannels{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats(t *testing.T) {
	s := New(fakePeers{}, fakeChannels{})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"channels\":2")
}
