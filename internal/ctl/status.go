package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name            string `json:"name"`
	Role            string `json:"role"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Connected       bool   `json:"connected"`
	AutoSync        bool   `json:"auto_sync"`
	RemoteRole      string `json:"remote_role"`
	LastHeartbeatAt string `json:"last_heartbeat_at"`
	LastSnapshotAt  string `json:"last_snapshot_at"`
	DataRoot        string `json:"data_root"`
	DemoEnabled     bool   `json:"demo_enabled"`
	PresetsOpen     bool   `json:"presets_open"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	link := "disconnected"
	if s.Connected {
		link = "connected"
		if s.RemoteRole != "" {
			link = "connected to " + s.RemoteRole
		}
	}
	autoSync := "off"
	if s.AutoSync {
		autoSync = "on"
	}

	fmt.Println()
	fmt.Println(header("  STAGELINK STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Role:"), colorize(roleColor(s.Role), s.Role))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Link:"), colorize(connColor(s.Connected), link))
	fmt.Printf("  %-12s %s\n", colorize(dim, "AutoSync:"), autoSync)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	if s.LastHeartbeatAt != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Heartbeat:"), s.LastHeartbeatAt)
	}
	if s.LastSnapshotAt != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Snapshot:"), s.LastSnapshotAt)
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Data:"), s.DataRoot)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), strings.TrimRight(baseURL, "/"))
	fmt.Println()

	return nil
}
