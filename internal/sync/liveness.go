package sync

import "time"

// livenessTimeout is how long the peer may stay silent before the link is
// declared down: two heartbeat intervals plus grace, so a single lost
// heartbeat never causes a disconnect.
func (c *Coordinator) livenessTimeout() time.Duration {
	return 2*c.hbInterval + livenessGrace
}

// markAliveLocked records an accepted liveness signal (hello or heartbeat).
// A sender identity different from the last known one means the peer process
// was replaced, e.g. a reloaded receiver; that is an ordinary occurrence,
// not an error.
func (c *Coordinator) markAliveLocked(remoteID string, remoteRole Role, now time.Time) {
	if c.remoteID != "" && c.remoteID != remoteID && c.log != nil {
		c.log.Printf("sync: peer replaced (%s -> %s)", shortID(c.remoteID), shortID(remoteID))
	}
	// A new identity or role is a status change in its own right, even when
	// the link never dropped (a receiver reloading inside the timeout window).
	if c.remoteID != remoteID || c.remoteRole != remoteRole {
		c.markStatusDirtyLocked()
	}
	c.remoteID = remoteID
	c.remoteRole = remoteRole
	c.lastSeen = now
	if !c.connected {
		c.connected = true
		if c.log != nil {
			c.log.Printf("sync: connected to %s %s", remoteRole, shortID(remoteID))
		}
		c.markStatusDirtyLocked()
	}
}

// checkLivenessLocked runs on every tick, not just on message arrival, so a
// peer that vanishes silently is still detected with zero further traffic.
func (c *Coordinator) checkLivenessLocked(now time.Time) {
	if !c.connected {
		return
	}
	if now.Sub(c.lastSeen) <= c.livenessTimeout() {
		return
	}
	c.connected = false
	if c.log != nil {
		c.log.Printf("sync: peer %s timed out", shortID(c.remoteID))
	}
	c.markStatusDirtyLocked()
}

// Status returns the current connection tuple.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) statusLocked() Status {
	return Status{
		Role:            c.role,
		Connected:       c.connected,
		AutoSync:        c.autoSync,
		RemoteID:        c.remoteID,
		RemoteRole:      c.remoteRole,
		LastHeartbeatAt: c.lastSeen,
		LastSnapshotAt:  c.lastSnapshotAt,
		LastFeaturesAt:  c.lastFeaturesAt,
	}
}

// OnStatus registers a status listener. Listeners fire only when the
// connection tuple actually changes, and a panicking listener never prevents
// the remaining ones from running.
func (c *Coordinator) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

// statusDirty marks that the deduplicated status tuple may have changed.
// The actual comparison happens in takeNotification.
func (c *Coordinator) markStatusDirtyLocked() {
	c.statusDirty = true
}

// takeNotification returns the status to publish, or nil when nothing
// observable changed. Called with the mutex held; the returned value is
// delivered after unlock so listeners can safely call back into the
// coordinator.
func (c *Coordinator) takeNotification() *Status {
	if !c.statusDirty {
		return nil
	}
	c.statusDirty = false

	key := statusKey{
		connected:  c.connected,
		autoSync:   c.autoSync,
		remoteID:   c.remoteID,
		remoteRole: c.remoteRole,
	}
	if c.lastNotified != nil && *c.lastNotified == key {
		return nil
	}
	c.lastNotified = &key
	s := c.statusLocked()
	return &s
}

// runListeners invokes every registered listener with s, isolating panics so
// one failing listener cannot block the rest.
func (c *Coordinator) runListeners(s *Status) {
	if s == nil {
		return
	}
	c.mu.Lock()
	listeners := make([]func(Status), len(c.statusListeners))
	copy(listeners, c.statusListeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil && c.log != nil {
					c.log.Printf("sync: status listener panic: %v", r)
				}
			}()
			fn(*s)
		}()
	}
}

// shortID trims a peer identity for logging.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
