// Package app wires together the HTTP server, the WebSocket event hub, the
// sync coordinator and its transports, the preset store, and the demo
// runner. It owns the daemon's lifecycle.
package app

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lumen-foundry/stagelink/internal/config"
	"github.com/lumen-foundry/stagelink/internal/demo"
	"github.com/lumen-foundry/stagelink/internal/features"
	"github.com/lumen-foundry/stagelink/internal/pads"
	"github.com/lumen-foundry/stagelink/internal/presets"
	"github.com/lumen-foundry/stagelink/internal/scene"
	stagesync "github.com/lumen-foundry/stagelink/internal/sync"
	"github.com/lumen-foundry/stagelink/internal/sync/transport"
	"github.com/lumen-foundry/stagelink/internal/telemetry"
	"github.com/lumen-foundry/stagelink/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger *log.Logger
	Cfg    config.Config
	Bind   string
}

// App is the top-level daemon process.
type App struct {
	log    *log.Logger
	cfg    config.Config
	bind   string
	server *http.Server

	startedAt time.Time

	engine   *scene.MemoryEngine
	coord    *stagesync.Coordinator
	group    *transport.Group
	store    *presets.Store
	follower *pads.Follower
	wsHub    *ws.Hub
}

// New assembles the daemon. Call Run to start serving.
func New(opts Options) *App {
	a := &App{
		log:       opts.Logger,
		cfg:       opts.Cfg,
		bind:      opts.Bind,
		startedAt: time.Now(),
		follower:  pads.NewFollower(),
	}
	a.engine = scene.NewMemoryEngine(opts.Logger)

	role := stagesync.Role(opts.Cfg.Sync.Role)

	// The only transport address we advertise is the direct listen address,
	// and only control listens; receivers dial.
	directBind := ""
	directAddr := ""
	if role == stagesync.RoleControl {
		directBind = opts.Cfg.Transport.DirectBind
		directAddr = directBind
	}

	tcfg := opts.Cfg.Transport
	a.group = transport.NewGroup(
		transport.NewBroadcast(tcfg.RedisAddr, opts.Logger),
		transport.NewDirect(directBind, opts.Logger),
		transport.NewRelay(tcfg.RelayDir, opts.Logger),
		opts.Logger,
	)

	a.coord = stagesync.New(stagesync.Options{
		Role:              role,
		Engine:            a.engine,
		Out:               a.group,
		Logger:            opts.Logger,
		DirectAddr:        directAddr,
		HeartbeatInterval: time.Duration(opts.Cfg.Sync.HeartbeatMs) * time.Millisecond,
		SnapshotThrottle:  time.Duration(opts.Cfg.Sync.SnapshotThrottleMs) * time.Millisecond,
	})

	// New watch clients get the current sync status immediately.
	a.wsHub = ws.NewHub(func() []byte {
		b, err := json.Marshal(a.syncStatusEvent(a.coord.Status()))
		if err != nil {
			return nil
		}
		return b
	})

	a.coord.OnStatus(func(s stagesync.Status) {
		a.wsHub.BroadcastJSON(a.syncStatusEvent(s))
	})
	a.coord.SetSnapshotAppliedHook(func(applied scene.Applied) {
		a.wsHub.BroadcastJSON(telemetry.SnapshotApplied{
			Event:           telemetry.Event{Type: telemetry.EventSnapshotApplied, TS: telemetry.NowTS()},
			ThemeReapplied:  applied.ThemeReapplied,
			ParticleRebuild: applied.ParticleRebuild,
		})
	})
	a.coord.SetPadEventHandler(func(ev stagesync.PadEventPayload) {
		a.follower.Handle(pads.Event{
			Key:    ev.Key,
			Action: ev.Action,
			At:     time.UnixMilli(ev.T),
		})
		a.wsHub.BroadcastJSON(telemetry.Pad{
			Event:  telemetry.Event{Type: telemetry.EventPad, TS: telemetry.NowTS()},
			Key:    ev.Key,
			Action: ev.Action,
		})
	})
	a.coord.SetFeaturesHandler(func(f features.Frame) {
		if f.BPM > 0 {
			a.follower.SetBPM(f.BPM)
		}
	})

	return a
}

// Run starts the transports, coordinator, HTTP server, and demo runner. It
// blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" {
		bind = a.cfg.Server.Bind
	}

	if store, err := presets.Open(filepath.Join(a.cfg.Data.Root, "presets.db")); err != nil {
		// Presets are a convenience; the daemon keeps running without them.
		a.log.Printf("preset store unavailable: %v", err)
	} else {
		a.store = store
		defer store.Close()
	}

	a.group.Start(ctx, a.coord.HandleRaw)
	defer a.group.Close()
	a.startDiscovery(ctx)

	go a.wsHub.Run(ctx)

	a.coord.Start(time.Now())
	go a.tickLoop(ctx)

	if a.cfg.Demo.Enabled && a.coord.Role() != stagesync.RoleReceiver {
		r := demo.New(a.engine, a.coord, a.wsHub)
		if a.cfg.Demo.MutateSeconds > 0 {
			r.MutateInterval = time.Duration(a.cfg.Demo.MutateSeconds) * time.Second
		}
		go r.Run(ctx)
	}

	mux := http.NewServeMux()
	a.routes(mux)

	a.server = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	a.log.Printf("%s listening on http://%s", a.coord.Role(), bind)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	return a.server.Serve(ln)
}

// tickLoop drives the coordinator's time-based work: heartbeats, the
// disconnect timeout, and throttled snapshot pushes.
func (a *App) tickLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.Sync.TickMs) * time.Millisecond
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			a.coord.Tick(now)
		}
	}
}

// startDiscovery wires mDNS: control announces its direct endpoint, a
// receiver with no configured control address browses for one. All of it is
// best effort on top of the other channels.
func (a *App) startDiscovery(ctx context.Context) {
	switch a.coord.Role() {
	case stagesync.RoleReceiver:
		if addr := a.cfg.Transport.ControlAddr; addr != "" {
			a.group.SetDirectPeer(addr)
			return
		}
		if !a.cfg.Transport.Discovery {
			return
		}
		go func() {
			if addr, ok := transport.DiscoverControl(ctx, 10*time.Second, a.log); ok {
				a.group.SetDirectPeer(addr)
			}
		}()

	case stagesync.RoleControl:
		if !a.cfg.Transport.Discovery {
			return
		}
		_, portStr, err := net.SplitHostPort(a.cfg.Transport.DirectBind)
		if err != nil {
			return
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return
		}
		shutdown := transport.Announce("stagelink-"+shortID(a.coord.ID()), port, a.log)
		go func() {
			<-ctx.Done()
			shutdown()
		}()
	}
}

// syncStatusEvent converts a coordinator status tuple to its wire event.
func (a *App) syncStatusEvent(s stagesync.Status) telemetry.SyncStatus {
	ev := telemetry.SyncStatus{
		Event:     telemetry.Event{Type: telemetry.EventSyncStatus, TS: telemetry.NowTS()},
		Role:      string(s.Role),
		Connected: s.Connected,
		AutoSync:  s.AutoSync,
	}
	if s.RemoteRole != "" {
		ev.RemoteRole = string(s.RemoteRole)
	}
	if !s.LastHeartbeatAt.IsZero() {
		ev.LastHeartbeatAt = s.LastHeartbeatAt.UTC().Format(time.RFC3339Nano)
	}
	if !s.LastFeaturesAt.IsZero() {
		ev.LastFeaturesAt = s.LastFeaturesAt.UTC().Format(time.RFC3339Nano)
	}
	return ev
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
