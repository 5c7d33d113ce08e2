// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between stagelinkd and its clients. These types serve
// as documentation for the event schema; some internal code still broadcasts
// events as map[string]any where the shape is trivial.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventSyncStatus      EventType = "sync_status"
	EventSnapshotApplied EventType = "snapshot_applied"
	EventCommand         EventType = "command"
	EventPad             EventType = "pad"
	EventLog             EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching
// the timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// SyncStatus mirrors the coordinator's status tuple; emitted on every
// connection-state or autosync transition and replayed to new clients.
type SyncStatus struct {
	Event
	Role            string `json:"role"`
	Connected       bool   `json:"connected"`
	AutoSync        bool   `json:"autoSync"`
	RemoteRole      string `json:"remoteRole,omitempty"`
	LastHeartbeatAt string `json:"lastHeartbeatAt,omitempty"`
	LastFeaturesAt  string `json:"lastFeaturesAt,omitempty"`
}

// SnapshotApplied reports a receiver-side snapshot application and which
// expensive side effects it triggered.
type SnapshotApplied struct {
	Event
	ThemeReapplied  bool `json:"themeReapplied"`
	ParticleRebuild bool `json:"particleRebuild"`
}

// Command reports a one-shot command passing through the daemon.
type Command struct {
	Event
	Name string `json:"name"`
}

// Pad reports a performance-pad event passing through the daemon.
type Pad struct {
	Event
	Key    string `json:"key"`
	Action string `json:"action"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}
