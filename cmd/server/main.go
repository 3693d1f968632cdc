// Command server runs the linechat relay: the TCP chat listener plus the
// optional HTTP surface for health, metrics and the WebSocket gateway.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/server"
	"github.com/Tyrowin/linechat/internal/supervisor"
)

// supervisorSlack is added to the drain grace so the tree outlasts the relay's
// own forced-close deadline.
const supervisorSlack = 5 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	hub := server.NewHub(server.NewHubConfig(cfg))

	// Bind before anything starts so a taken port fails the whole process.
	relay := server.NewServer(cfg.Server, hub)
	if err := relay.Listen(); err != nil {
		logging.Fatal().Err(err).Str("addr", cfg.Address()).Msg("failed to bind relay listener")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownGrace + supervisorSlack,
	})
	tree.AddRelayService(relay)

	if cfg.HTTP.Enabled {
		httpServer := server.CreateServer(cfg.HTTP.Addr, server.SetupRoutes(hub, cfg))
		tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, cfg.Server.ShutdownGrace))
		logging.Info().
			Str("addr", cfg.HTTP.Addr).
			Bool("websocket", cfg.HTTP.WebSocket).
			Msg("HTTP server service added")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// The tree's result channel yields exactly once and is never closed.
	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received, draining connections")
		err = <-errCh
	case err = <-errCh:
	}
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
	}
	logging.Info().Msg("relay stopped")
}
