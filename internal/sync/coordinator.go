package sync

import (
	"encoding/json"
	"log"
	stdsync "sync"
	"time"

	"github.com/lumen-foundry/stagelink/internal/features"
	"github.com/lumen-foundry/stagelink/internal/scene"
)

// Default timing. Heartbeats and the snapshot throttle are configurable;
// the rest are fixed properties of the protocol.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultSnapshotThrottle  = 450 * time.Millisecond

	// livenessGrace pads the disconnect timeout beyond two heartbeat
	// intervals so one dropped heartbeat never flaps the connection state.
	livenessGrace = 800 * time.Millisecond

	// featureThrottle caps the outbound feature stream at roughly 30 Hz.
	featureThrottle = 33 * time.Millisecond
)

// Sender is what the coordinator needs from the transport layer: fan-out
// delivery and a way to hand the direct adapter a learned peer address.
// *transport.Group satisfies it; tests inject fakes.
type Sender interface {
	Send(raw []byte, useRelay bool) int
	SetDirectPeer(addr string)
}

// Status is the tuple pushed to status listeners and polled by the UI.
type Status struct {
	Role            Role      `json:"role"`
	Connected       bool      `json:"connected"`
	AutoSync        bool      `json:"autoSync"`
	RemoteID        string    `json:"remoteId,omitempty"`
	RemoteRole      Role      `json:"remoteRole,omitempty"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt,omitempty"`
	LastSnapshotAt  time.Time `json:"lastSnapshotAt,omitempty"`
	LastFeaturesAt  time.Time `json:"lastFeaturesAt,omitempty"`
}

// statusKey is the part of Status that defines "changed" for listener
// deduplication. Timestamps churn on every message and would otherwise fire
// listeners constantly.
type statusKey struct {
	connected  bool
	autoSync   bool
	remoteID   string
	remoteRole Role
}

// Options configures a Coordinator.
type Options struct {
	Role   Role
	Engine scene.Engine
	Out    Sender
	Logger *log.Logger

	// DirectAddr is this process's direct-link dial address, advertised in
	// hello payloads so the peer can upgrade to the direct transport.
	DirectAddr string

	HeartbeatInterval time.Duration
	SnapshotThrottle  time.Duration
}

// Coordinator is the cross-context synchronization core. One instance runs
// per process; its role is fixed for its lifetime and its identity is
// regenerated on every construction, so a reloaded peer always registers as
// a new one.
//
// All state is guarded by a single mutex. Transports deliver into HandleRaw
// from their own goroutines and the host drives Tick from a timer loop, but
// within the coordinator everything is serialized, mirroring the
// single-threaded event model the protocol assumes.
type Coordinator struct {
	id         string
	role       Role
	engine     scene.Engine
	out        Sender
	log        *log.Logger
	directAddr string

	hbInterval   time.Duration
	snapThrottle time.Duration

	mu stdsync.Mutex

	// Liveness.
	connected  bool
	remoteID   string
	remoteRole Role
	lastSeen   time.Time
	lastHBSent time.Time

	// Control-side reconciliation.
	autoSync     bool
	lastSnapSent time.Time
	lastSnapJSON []byte
	lastFeatSent time.Time

	// Receiver-side arrival tracking.
	lastSnapshotAt time.Time
	lastFeaturesAt time.Time
	lastFrame      features.Frame

	statusListeners []func(Status)
	lastNotified    *statusKey
	statusDirty     bool

	padHandler      func(PadEventPayload)
	featuresHandler func(features.Frame)
	appliedHook     func(scene.Applied)
}

// New constructs a coordinator. The role must be valid; an unknown role
// degrades to solo so a misconfigured process stays self-contained instead
// of half-participating.
func New(opts Options) *Coordinator {
	role := opts.Role
	if !role.Valid() {
		role = RoleSolo
	}
	hb := opts.HeartbeatInterval
	if hb <= 0 {
		hb = DefaultHeartbeatInterval
	}
	st := opts.SnapshotThrottle
	if st <= 0 {
		st = DefaultSnapshotThrottle
	}
	c := &Coordinator{
		id:           NewIdentity(),
		role:         role,
		engine:       opts.Engine,
		out:          opts.Out,
		log:          opts.Logger,
		directAddr:   opts.DirectAddr,
		hbInterval:   hb,
		snapThrottle: st,
		autoSync:     true,
	}
	// Seed the dedupe key with the initial state so listeners only ever see
	// actual transitions.
	c.lastNotified = &statusKey{autoSync: true}
	return c
}

// ID returns the process identity used for self-echo filtering.
func (c *Coordinator) ID() string { return c.id }

// Role returns the immutable role of this coordinator.
func (c *Coordinator) Role() Role { return c.role }

// Start announces this process. Control and receiver both send hello; a
// receiver additionally requests a snapshot so it can recover state from a
// control that was already running. Solo sends nothing, ever.
func (c *Coordinator) Start(now time.Time) {
	if c.role == RoleSolo {
		return
	}
	c.mu.Lock()
	c.lastHBSent = now
	c.sendHelloLocked(now)
	if c.role == RoleReceiver {
		c.sendLocked(MsgRequestSnapshot, struct{}{}, string(RoleControl), true, now)
	}
	c.mu.Unlock()
}

// Tick drives time-based work: the disconnect timeout, the periodic
// heartbeat, and the throttled change-driven snapshot push. The host calls
// it on a short interval; passing now explicitly keeps it deterministic
// under test.
func (c *Coordinator) Tick(now time.Time) {
	if c.role == RoleSolo {
		return
	}

	c.mu.Lock()
	c.checkLivenessLocked(now)

	// Heartbeats ride every channel including the mailbox file: on a
	// relay-only link they are the only thing keeping the peer alive, and at
	// one write per 5 s the disk churn is negligible.
	if now.Sub(c.lastHBSent) >= c.hbInterval {
		c.lastHBSent = now
		c.sendLocked(MsgHeartbeat, HeartbeatPayload{Role: c.role}, TargetAny, true, now)
	}

	if c.role == RoleControl {
		c.maybeSendSnapshotLocked(now)
	}
	notify := c.takeNotification()
	c.mu.Unlock()

	c.runListeners(notify)
}

// HandleRaw is the single entry point for inbound transport payloads.
// Malformed payloads, self-echo, and target mismatches are dropped silently;
// any same-origin process can write to the shared channels, so none of that
// is an error.
func (c *Coordinator) HandleRaw(raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return
	}
	c.Dispatch(env, time.Now())
}

// Dispatch routes an already-decoded envelope. Exposed separately from
// HandleRaw so tests can drive the coordinator with explicit times.
func (c *Coordinator) Dispatch(env Envelope, now time.Time) {
	if c.role == RoleSolo {
		return
	}
	if !env.AcceptedBy(c.role, c.id) {
		return
	}

	c.mu.Lock()
	switch env.Type {
	case MsgHello:
		c.handleHelloLocked(env, now)
	case MsgHeartbeat:
		c.handleHeartbeatLocked(env, now)
	case MsgRequestSnapshot:
		if c.role == RoleControl {
			c.pushNowLocked(now)
		}
	case MsgParamsSnapshot:
		if c.role == RoleReceiver {
			c.applySnapshotLocked(env, now)
		}
	case MsgFeatures:
		if c.role == RoleReceiver {
			c.handleFeaturesLocked(env, now)
		}
	case MsgCommand:
		if c.role == RoleReceiver {
			c.handleCommandLocked(env)
		}
	case MsgPadEvent:
		c.handlePadEventLocked(env)
	default:
		// Unknown types from a newer peer are ignored, not rejected.
	}
	notify := c.takeNotification()
	c.mu.Unlock()

	c.runListeners(notify)
}

func (c *Coordinator) handleHelloLocked(env Envelope, now time.Time) {
	var p HelloPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || !p.Role.Valid() {
		return
	}

	wasNew := !c.connected || c.remoteID != env.SenderID
	c.markAliveLocked(env.SenderID, p.Role, now)

	if p.DirectAddr != "" && c.out != nil {
		c.out.SetDirectPeer(p.DirectAddr)
	}

	switch c.role {
	case RoleControl:
		// Reply so the peer learns our identity and direct address, then
		// force a full push: a receiver that just loaded gets complete state
		// without waiting for the throttle window.
		c.sendHelloLocked(now)
		c.pushNowLocked(now)
	case RoleReceiver:
		// Reply only when the control is new to us; replying every time
		// would ping-pong hellos between the two sides forever.
		if wasNew {
			c.sendHelloLocked(now)
		}
	}
}

func (c *Coordinator) handleHeartbeatLocked(env Envelope, now time.Time) {
	var p HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || !p.Role.Valid() {
		return
	}
	c.markAliveLocked(env.SenderID, p.Role, now)
}

// handleCommandLocked executes a named receiver-side action. Unrecognized
// names are silent no-ops: forward/backward compatibility across
// control/receiver versions matters more than strictness here.
func (c *Coordinator) handleCommandLocked(env Envelope) {
	var p CommandPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Name == "" {
		return
	}
	if c.engine == nil {
		return
	}
	switch p.Name {
	case "enterFullscreen":
		c.engine.SetFullscreen(true)
	case "exitFullscreen":
		c.engine.SetFullscreen(false)
	case "toggleFullscreen":
		c.engine.SetFullscreen(!c.engine.Fullscreen())
	default:
		_ = c.engine.TriggerEffect(p.Name)
	}
}

// handlePadEventLocked forwards a pad event verbatim to the registered
// handler. The coordinator is pure transport for the pad subsystem and never
// interprets pad semantics.
func (c *Coordinator) handlePadEventLocked(env Envelope) {
	var p PadEventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Key == "" {
		return
	}
	if c.padHandler != nil {
		c.padHandler(p)
	}
}

// SendCommand emits a named command to the receiver. Fire-and-forget, no
// acknowledgement.
func (c *Coordinator) SendCommand(name string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(MsgCommand, CommandPayload{Name: name}, string(RoleReceiver), true, now)
}

// SendPadEvent emits a performance-pad event to the receiver. Pad events are
// discrete and never retransmitted; a dropped release would leave the pad
// engaged on the far side, so they take the relay channel too.
func (c *Coordinator) SendPadEvent(ev PadEventPayload, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(MsgPadEvent, ev, string(RoleReceiver), true, now)
}

// SetPadEventHandler registers the receiver-side pad-event consumer.
func (c *Coordinator) SetPadEventHandler(fn func(PadEventPayload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.padHandler = fn
}

// SetFeaturesHandler registers the receiver-side consumer for audio-feature
// frames as they arrive.
func (c *Coordinator) SetFeaturesHandler(fn func(features.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.featuresHandler = fn
}

// SetSnapshotAppliedHook registers a hook invoked after each applied
// snapshot, used by the host to surface applications on its event stream.
func (c *Coordinator) SetSnapshotAppliedHook(fn func(scene.Applied)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appliedHook = fn
}

// SetAutoSync toggles the change-driven snapshot and feature streams.
// Forced pushes keep working while autosync is off.
func (c *Coordinator) SetAutoSync(on bool) {
	c.mu.Lock()
	c.autoSync = on
	c.markStatusDirtyLocked()
	notify := c.takeNotification()
	c.mu.Unlock()
	c.runListeners(notify)
}

// AutoSync reports whether the automatic streams are enabled.
func (c *Coordinator) AutoSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSync
}

// sendLocked builds, encodes, and fans out one envelope. Solo sends nothing.
// Failures are already absorbed by the transport layer; the envelope build
// itself only fails on an unmarshalable payload, which is a programming
// error we drop rather than propagate.
func (c *Coordinator) sendLocked(t MsgType, payload any, target string, useRelay bool, now time.Time) {
	if c.role == RoleSolo || c.out == nil {
		return
	}
	env, err := NewEnvelope(t, payload, target, c.id, now)
	if err != nil {
		return
	}
	raw, err := env.Encode()
	if err != nil {
		return
	}
	c.out.Send(raw, useRelay)
}

func (c *Coordinator) sendHelloLocked(now time.Time) {
	c.sendLocked(MsgHello, HelloPayload{Role: c.role, DirectAddr: c.directAddr}, TargetAny, true, now)
}
