package sync

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/lumen-foundry/stagelink/internal/features"
	"github.com/lumen-foundry/stagelink/internal/scene"
)

// PushNow captures a fresh snapshot and sends it unconditionally. Used for
// the hello reply, the requestSnapshot reply, and explicit operator pushes.
func (c *Coordinator) PushNow(now time.Time) {
	if c.role != RoleControl {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushNowLocked(now)
}

func (c *Coordinator) pushNowLocked(now time.Time) {
	if c.engine == nil {
		return
	}
	snap := c.engine.Params().Clone()
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	c.sendLocked(MsgParamsSnapshot, snap, string(RoleReceiver), true, now)
	// Record the serialized form so throttled sends stay quiet until the
	// state actually changes again.
	c.lastSnapJSON = raw
	c.lastSnapSent = now
}

// maybeSendSnapshotLocked is the throttled, change-driven push. It does
// nothing inside the throttle window, and outside it sends only if the
// canonical serialization differs from the last one sent: unchanged state
// produces no traffic. Struct marshalling in Go has stable field order, so
// byte equality is a canonical comparison here.
func (c *Coordinator) maybeSendSnapshotLocked(now time.Time) {
	if !c.autoSync || c.engine == nil {
		return
	}
	if now.Sub(c.lastSnapSent) < c.snapThrottle {
		return
	}
	snap := c.engine.Params().Clone()
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if bytes.Equal(raw, c.lastSnapJSON) {
		return
	}
	c.sendLocked(MsgParamsSnapshot, snap, string(RoleReceiver), true, now)
	c.lastSnapJSON = raw
	c.lastSnapSent = now
}

// HandleLocalFeatures takes the host's per-frame audio feature object,
// sanitizes it to the wire allowlist, and streams it to the receiver at
// roughly 30 Hz. The stream stops while autosync is off or the peer is
// known to be gone; before any peer has ever appeared the frames still go
// out, since a receiver may be listening on the broadcast bus already.
func (c *Coordinator) HandleLocalFeatures(raw map[string]any, now time.Time) {
	if c.role != RoleControl {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.autoSync {
		return
	}
	knownDisconnected := c.remoteID != "" && !c.connected
	if knownDisconnected {
		return
	}
	if now.Sub(c.lastFeatSent) < featureThrottle {
		return
	}
	frame := features.Sanitize(raw)
	c.sendLocked(MsgFeatures, frame, string(RoleReceiver), false, now)
	c.lastFeatSent = now
}

// applySnapshotLocked merges an inbound snapshot onto the live scene with
// the targeted per-field side effects (theme re-init, lensflare toggle,
// pixel-ratio setter, one batched particle rebuild).
func (c *Coordinator) applySnapshotLocked(env Envelope, now time.Time) {
	if c.engine == nil {
		return
	}
	applied, err := scene.ApplySnapshot(c.engine, env.Payload)
	if err != nil {
		return
	}
	c.lastSnapshotAt = now
	if c.appliedHook != nil {
		c.appliedHook(applied)
	}
}

// handleFeaturesLocked stores an inbound feature frame and forwards it to
// the registered consumer. Frames decode against the same allowlisted shape
// they were sanitized to; anything else is dropped.
func (c *Coordinator) handleFeaturesLocked(env Envelope, now time.Time) {
	var frame features.Frame
	if err := json.Unmarshal(env.Payload, &frame); err != nil {
		return
	}
	c.lastFrame = frame
	c.lastFeaturesAt = now
	if c.featuresHandler != nil {
		c.featuresHandler(frame)
	}
}

// LatestFeatures returns the newest received frame, or ok=false when none
// has arrived within the staleness window. A receiver rendering from a stale
// frame would show frozen audio-reactive motion after a dropped connection.
func (c *Coordinator) LatestFeatures(now time.Time) (features.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if features.IsStale(c.lastFeaturesAt, now) {
		return features.Frame{}, false
	}
	return c.lastFrame, true
}
