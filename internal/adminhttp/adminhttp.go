// Package adminhttp exposes the gateway's minimal operator HTTP surface:
// liveness/readiness probes and a stats snapshot. The full REST admin
// surface (peer/channel administration, registration) is an explicit
// Non-goal of the core (spec §1); this package only carries the slice an
// operator needs to point a load balancer's health check and a dashboard
// at.
//
// Grounded on the teacher's cmd/main.go Gin wiring (gin.New() plus
// gin.Recovery(), router.GET("/health", ...)), trimmed to the handful of
// middleware an internal-only operator endpoint needs rather than the
// full public-facing security chain (CORS, CSRF, input sanitization) the
// teacher's customer-facing API carries.
package adminhttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mudmesh/gateway/internal/connmgr"
)

// PeerTable is the subset of *connmgr.Manager the stats endpoint needs.
type PeerTable interface {
	Count() int
	All() []*connmgr.Connection
}

// ChannelTable is the subset of *channel.Service the stats endpoint needs,
// named generically here to avoid importing the channel package just for
// one method's return type.
type ChannelTable interface {
	ChannelCount() int
}

// Server is the gateway's admin HTTP surface.
type Server struct {
	engine    *gin.Engine
	peers     PeerTable
	channels  ChannelTable
	startedAt time.Time
}

func New(peers PeerTable, channels ChannelTable) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, peers: peers, channels: channels, startedAt: time.Now()}
	engine.GET("/healthz", s.healthz)
	engine.GET("/readyz", s.readyz)
	engine.GET("/stats", s.stats)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyz always reports ready, together with the process uptime; it does
// not probe the Registry, since the Registry is explicitly best-effort
// (spec §4.7) and its absence should not flip the gateway to not-ready.
func (s *Server) readyz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "uptime": time.Since(s.startedAt).String()})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connectedPeers": s.peers.Count(),
		"authenticatedPeers": len(s.peers.All()),
		"channels":           s.channels.ChannelCount(),
		"uptime":             time.Since(s.startedAt).String(),
	})
}
