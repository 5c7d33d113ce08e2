package app

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	stagesync "github.com/lumen-foundry/stagelink/internal/sync"
)

// actionResult is the uniform response shape for control endpoints.
type actionResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *App) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/params", a.handleParams)
	mux.HandleFunc("/api/push", a.handlePush)
	mux.HandleFunc("/api/command", a.handleCommand)
	mux.HandleFunc("/api/autosync", a.handleAutoSync)
	mux.HandleFunc("/api/popout", a.handlePopout)
	mux.HandleFunc("/api/presets", a.handlePresets)
	mux.HandleFunc("/api/presets/", a.handlePresetByName)
	mux.Handle("/ws", a.wsHub.Handler())
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s := a.coord.Status()

	resp := map[string]any{
		"name":           "stagelink",
		"role":           string(s.Role),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"connected":      s.Connected,
		"auto_sync":      s.AutoSync,
		"data_root":      a.cfg.Data.Root,
		"demo_enabled":   a.cfg.Demo.Enabled,
		"presets_open":   a.store != nil,
	}
	if s.RemoteRole != "" {
		resp["remote_role"] = string(s.RemoteRole)
	}
	if !s.LastHeartbeatAt.IsZero() {
		resp["last_heartbeat_at"] = s.LastHeartbeatAt.UTC().Format(time.RFC3339Nano)
	}
	if !s.LastSnapshotAt.IsZero() {
		resp["last_snapshot_at"] = s.LastSnapshotAt.UTC().Format(time.RFC3339Nano)
	}
	if du := diskUsage(a.cfg.Data.Root); du != nil {
		resp["disk"] = du
	}

	writeJSON(w, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.cfg)
}

// handleParams exposes the live parameter tree, mainly for debugging a
// receiver that looks out of sync.
func (a *App) handleParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.engine.Params())
}

func (a *App) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.coord.Role() != stagesync.RoleControl {
		writeJSON(w, actionResult{Error: "push is a control-side action"})
		return
	}
	a.coord.PushNow(time.Now())
	writeJSON(w, actionResult{OK: true, Message: "snapshot pushed"})
}

func (a *App) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, actionResult{Error: "body must be {\"name\": ...}"})
		return
	}
	a.coord.SendCommand(body.Name, time.Now())
	a.wsHub.BroadcastJSON(map[string]any{
		"type": "command",
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"name": body.Name,
	})
	writeJSON(w, actionResult{OK: true, Message: "command sent: " + body.Name})
}

func (a *App) handleAutoSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSON(w, actionResult{Error: "body must be {\"enabled\": true|false}"})
		return
	}
	a.coord.SetAutoSync(*body.Enabled)
	if *body.Enabled {
		writeJSON(w, actionResult{OK: true, Message: "autosync enabled"})
	} else {
		writeJSON(w, actionResult{OK: true, Message: "autosync disabled"})
	}
}

func (a *App) handlePopout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.coord.Role() != stagesync.RoleControl {
		writeJSON(w, actionResult{Error: "popout is a control-side action"})
		return
	}
	pid, err := a.spawnReceiver()
	if err != nil {
		writeJSON(w, actionResult{Error: err.Error()})
		return
	}
	writeJSON(w, actionResult{OK: true, Message: "receiver spawned, pid " + pid})
}

// handlePresets handles GET (list) and POST (save current params under a
// name) on /api/presets.
func (a *App) handlePresets(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.Error(w, "preset store unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		names, err := a.store.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, map[string]any{"presets": names})

	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			writeJSON(w, actionResult{Error: "body must be {\"name\": ...}"})
			return
		}
		if err := a.store.Save(body.Name, a.engine.Params()); err != nil {
			writeJSON(w, actionResult{Error: err.Error()})
			return
		}
		writeJSON(w, actionResult{OK: true, Message: "preset saved: " + body.Name})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePresetByName handles POST /api/presets/{name}/load and
// DELETE /api/presets/{name}.
func (a *App) handlePresetByName(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.Error(w, "preset store unavailable", http.StatusServiceUnavailable)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/presets/")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(rest, "/load"):
		name := strings.TrimSuffix(rest, "/load")
		p, err := a.store.Load(name)
		if err != nil {
			writeJSON(w, actionResult{Error: err.Error()})
			return
		}
		a.engine.SetParams(p)
		// A loaded preset should land on the receiver immediately, not on
		// the next throttle window.
		a.coord.PushNow(time.Now())
		writeJSON(w, actionResult{OK: true, Message: "preset loaded: " + name})

	case r.Method == http.MethodDelete:
		if err := a.store.Delete(rest); err != nil {
			writeJSON(w, actionResult{Error: err.Error()})
			return
		}
		writeJSON(w, actionResult{OK: true, Message: "preset deleted: " + rest})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
