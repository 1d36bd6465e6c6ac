// Command gatewayd runs the MUD mesh gateway: it wires configuration,
// logging, the Registry, the Credential Store, the Rate Limiter, the
// Connection Manager, the Channel Service, the Router, the
// Gateway-Handled Ops, and the maintenance scheduler together, serves the
// WebSocket listener and the minimal operator HTTP surface, and shuts
// down gracefully on SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/main.go: ordered subsystem construction,
// a signal channel for graceful shutdown, and a bounded shutdown timeout
// that tears components down in reverse dependency order.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mudmesh/gateway/internal/adminhttp"
	"github.com/mudmesh/gateway/internal/channel"
	"github.com/mudmesh/gateway/internal/config"
	"github.com/mudmesh/gateway/internal/connmgr"
	"github.com/mudmesh/gateway/internal/credential"
	"github.com/mudmesh/gateway/internal/gatewayops"
	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/maintenance"
	"github.com/mudmesh/gateway/internal/ratelimit"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/router"
	"github.com/mudmesh/gateway/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars always apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err) // no logger yet; this is startup-fatal
	}

	logging.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logging.Log

	reg, err := registry.NewRedisRegistry(registry.Config{
		Addr:     cfg.RegistryAddr,
		Password: cfg.RegistryPassword,
		DB:       cfg.RegistryDB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to registry")
	}
	defer reg.Close()

	credStore, err := buildCredentialStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential store")
	}

	limiter := ratelimit.NewTokenBucketLimiter(ratelimit.Limits{
		MessagesPerMinute:     cfg.RateLimit.MessagesPerMinute,
		TellsPerMinute:        cfg.RateLimit.TellsPerMinute,
		ChannelsPerMinute:     cfg.RateLimit.ChannelsPerMinute,
		ConnectPerIPPerMinute: cfg.RateLimit.ConnectPerIPPerMinute,
	})
	defer limiter.Stop()

	codec := wire.NewCodec(cfg.MaxFrameBytes)
	chSvc := channel.NewService(reg, cfg.ChannelHistoryInMemory, cfg.HistoryRingSize)

	mgr := connmgr.New(connmgr.Options{
		HeartbeatInterval:   cfg.HeartbeatInterval(),
		StaleAfter:          cfg.HeartbeatTimeout(),
		AuthGracePeriod:     cfg.AuthGracePeriod(),
		MaxAuthViolations:   cfg.MaxAuthViolations,
		DuplicateNamePolicy: connmgr.DuplicateNamePolicy(cfg.DuplicateNamePolicy),
		PeerRegistryTTL:     cfg.RegistryTTL(),
	}, codec, credStore, reg, limiter)

	mgr.Subscribe(func(evt connmgr.Event) {
		if evt.Type == connmgr.EventDisconnected {
			chSvc.PurgeMud(context.Background(), evt.MudName)
		}
	})

	ops := gatewayops.NewHandler(mgr, chSvc)
	r := router.New(mgr, chSvc, ops, codec, reg, cfg.HistoryRingSize)
	mgr.SetRouter(r)

	sched := maintenance.New(reg, mgr, cfg.RegistryTTL(), cfg.HistoryRingSize)
	if err := sched.Start(cfg.MaintenanceRefreshCron, cfg.MaintenanceSweepCron); err != nil {
		log.Fatal().Err(err).Msg("failed to start maintenance scheduler")
	}
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	wsServer := &http.Server{Addr: cfg.WSAddr, Handler: mgr}
	go func() {
		log.Info().Str("addr", cfg.WSAddr).Msg("websocket listener starting")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("websocket listener failed")
		}
	}()

	var adminServer *http.Server
	if cfg.AdminHTTPAddr != "" {
		admin := adminhttp.New(mgr, chSvc)
		adminServer = &http.Server{Addr: cfg.AdminHTTPAddr, Handler: admin.Handler()}
		go func() {
			log.Info().Str("addr", cfg.AdminHTTPAddr).Msg("admin http surface starting")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin http surface failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket listener did not shut down cleanly")
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin http surface did not shut down cleanly")
		}
	}
	mgr.Stop()
	log.Info().Msg("shutdown complete")
}

// buildCredentialStore selects the JWT-backed Credential Store, or the
// open (accept-anything) store when the deployment has opted out of
// requiring credentials (spec §9 open question 3, resolved in DESIGN.md:
// configurable, default true).
func buildCredentialStore(cfg config.Config) (credential.Store, error) {
	if !cfg.RequireCredential {
		return credential.OpenStore{}, nil
	}

	key, err := resolveSigningKey(cfg)
	if err != nil {
		return nil, err
	}
	return credential.NewJWTStore(key, cfg.AdminSecretHash), nil
}

func resolveSigningKey(cfg config.Config) ([]byte, error) {
	if cfg.JWTSigningKeyFile != "" {
		return os.ReadFile(cfg.JWTSigningKeyFile)
	}
	if cfg.JWTSigningKey != "" {
		return []byte(cfg.JWTSigningKey), nil
	}
	return credential.GenerateSigningKey()
}
