// Package config handles loading, defaulting, and validation of the
// StageLink TOML configuration file, with STAGELINK_* environment variables
// layered on top for container-style deployments. Every section maps to a
// typed struct so the rest of the codebase gets strong typing without manual
// key lookups.
package config

import (
	"errors"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data      DataConfig      `toml:"data"      json:"data"`
	Logging   LoggingConfig   `toml:"logging"   json:"logging"`
	Server    ServerConfig    `toml:"server"    json:"server"`
	Sync      SyncConfig      `toml:"sync"      json:"sync"`
	Transport TransportConfig `toml:"transport" json:"transport"`
	Demo      DemoConfig      `toml:"demo"      json:"demo"`
}

type DataConfig struct {
	// Root holds the preset database and other local state.
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// ServerConfig covers the local HTTP/WebSocket surface used by stagectl and
// dashboards; it is unrelated to the peer transports.
type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type SyncConfig struct {
	// Role is control, receiver, or solo.
	Role string `toml:"role" json:"role"`
	// HeartbeatMs is the liveness beacon interval.
	HeartbeatMs int `toml:"heartbeat_ms" json:"heartbeat_ms"`
	// SnapshotThrottleMs is the minimum spacing between change-driven
	// parameter snapshots.
	SnapshotThrottleMs int `toml:"snapshot_throttle_ms" json:"snapshot_throttle_ms"`
	// TickMs is the coordinator tick cadence.
	TickMs int `toml:"tick_ms" json:"tick_ms"`
}

type TransportConfig struct {
	// RedisAddr enables the broadcast bus; empty disables that channel.
	RedisAddr string `toml:"redis_addr" json:"redis_addr"`
	// RelayDir is where the mailbox file lives. Every process that should
	// see relay traffic must share it.
	RelayDir string `toml:"relay_dir" json:"relay_dir"`
	// DirectBind is the direct-link listen address. Empty disables
	// listening (the process can still dial out).
	DirectBind string `toml:"direct_bind" json:"direct_bind"`
	// ControlAddr is the control endpoint a receiver dials directly. Left
	// empty, the address is learned from hello payloads or mDNS.
	ControlAddr string `toml:"control_addr" json:"control_addr"`
	// Discovery enables mDNS announce (control) / browse (receiver).
	Discovery bool `toml:"discovery" json:"discovery"`
}

type DemoConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// MutateSeconds is how often the demo driver perturbs a scene parameter.
	MutateSeconds int `toml:"mutate_seconds" json:"mutate_seconds"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: "/var/lib/stagelink",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1:8420",
		},
		Sync: SyncConfig{
			Role:               "solo",
			HeartbeatMs:        5000,
			SnapshotThrottleMs: 450,
			TickMs:             150,
		},
		Transport: TransportConfig{
			RedisAddr:  "localhost:6379",
			RelayDir:   "/tmp/stagelink",
			DirectBind: "127.0.0.1:7420",
			Discovery:  true,
		},
		Demo: DemoConfig{
			Enabled:       true,
			MutateSeconds: 10,
		},
	}
}

// envOverrides are the settings that commonly differ per host and are
// therefore overridable without editing the file, e.g.
// STAGELINK_ROLE=receiver or STAGELINK_REDIS_ADDR=redis:6379.
type envOverrides struct {
	Role        *string `envconfig:"ROLE"`
	Bind        *string `envconfig:"BIND"`
	RedisAddr   *string `envconfig:"REDIS_ADDR"`
	RelayDir    *string `envconfig:"RELAY_DIR"`
	DirectBind  *string `envconfig:"DIRECT_BIND"`
	ControlAddr *string `envconfig:"CONTROL_ADDR"`
	DataRoot    *string `envconfig:"DATA_ROOT"`
}

// Load reads the TOML file at path, layers it on top of the defaults,
// applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file falls back to pure defaults
// plus environment overrides, so the daemon can start with no config file
// at all.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	cfg = Default()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, validate(cfg)
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process("stagelink", &o); err != nil {
		return err
	}
	if o.Role != nil {
		cfg.Sync.Role = *o.Role
	}
	if o.Bind != nil {
		cfg.Server.Bind = *o.Bind
	}
	if o.RedisAddr != nil {
		cfg.Transport.RedisAddr = *o.RedisAddr
	}
	if o.RelayDir != nil {
		cfg.Transport.RelayDir = *o.RelayDir
	}
	if o.DirectBind != nil {
		cfg.Transport.DirectBind = *o.DirectBind
	}
	if o.ControlAddr != nil {
		cfg.Transport.ControlAddr = *o.ControlAddr
	}
	if o.DataRoot != nil {
		cfg.Data.Root = *o.DataRoot
	}
	return nil
}

func validate(cfg Config) error {
	switch cfg.Sync.Role {
	case "control", "receiver", "solo":
	default:
		return errors.New("sync.role must be control, receiver, or solo")
	}
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if cfg.Sync.HeartbeatMs <= 0 {
		return errors.New("sync.heartbeat_ms must be > 0")
	}
	if cfg.Sync.SnapshotThrottleMs <= 0 {
		return errors.New("sync.snapshot_throttle_ms must be > 0")
	}
	if cfg.Sync.TickMs <= 0 {
		return errors.New("sync.tick_ms must be > 0")
	}
	if cfg.Transport.RelayDir == "" {
		return errors.New("transport.relay_dir must not be empty")
	}
	if cfg.Demo.MutateSeconds < 0 {
		return errors.New("demo.mutate_seconds must be >= 0")
	}
	return nil
}
