// Stagelinkd is the StageLink installation daemon.
//
// It loads configuration, assembles the sync coordinator with its three
// transports, and serves the local HTTP/WebSocket surface stagectl talks to.
// The process role (control, receiver, or solo) is fixed at startup.
// Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/lumen-foundry/stagelink/internal/app"
	"github.com/lumen-foundry/stagelink/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/stagelink/stagelink.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides config)")
		role       = pflag.String("role", "", "Sync role: control, receiver, or solo (overrides config)")
	)
	pflag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *role != "" {
		cfg.Sync.Role = *role
	}

	logger := log.New(os.Stdout, "stagelinkd ", log.LstdFlags|log.Lmicroseconds)

	a := app.New(app.Options{
		Logger: logger,
		Cfg:    cfg,
		Bind:   *bind,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("stagelinkd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
