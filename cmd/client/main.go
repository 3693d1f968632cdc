// Command client is the terminal chat client for the linechat relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/linechat/internal/client"
	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/names"
	"github.com/Tyrowin/linechat/internal/render"
)

const dialTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		fail("Invalid configuration", err)
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = "console"
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	fmt.Println(render.Info + "◆ Connecting..." + render.Reset)
	username := names.NewGenerator(0).Generate()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	c, err := client.Dial(ctx, cfg.Address(), username, client.WithTypingIdle(cfg.Client.TypingIdle))
	cancel()
	if err != nil {
		fail("Connection error", err)
	}

	// The UI owns the terminal from here on.
	logCfg.Level = "disabled"
	logging.Init(logCfg)

	ui, err := render.NewUI(c)
	if err != nil {
		_ = c.Close()
		fail("Terminal error", err)
	}
	runErr := ui.Run()

	select {
	case <-c.Done():
	default:
		fmt.Println(render.Subtle + "👋 Disconnecting..." + render.Reset)
	}
	_ = c.Close()

	status := "(clean)"
	if c.Err() != nil {
		status = "(error)"
	}
	fmt.Println(render.Subtle + "Connection closed " + status + render.Reset)

	if runErr != nil {
		fail("Terminal error", runErr)
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s✗ %s:%s %v\n", render.Error, what, render.Reset, err)
	os.Exit(1)
}
