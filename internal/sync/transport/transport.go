// Package transport provides the three delivery channels the coordinator
// fans out over: a Redis pub/sub broadcast bus, a direct WebSocket link, and
// a watched mailbox file as the relay of last resort. Every adapter is best
// effort: Send reports success or failure but never returns an error and
// never blocks on delivery confirmation. A missing backend (no Redis, no
// peer connection, an unwritable mailbox) degrades that one channel to a
// no-op; the coordinator compensates with periodic re-transmission.
package transport

import (
	"context"
	"log"
)

// DeliverFunc receives a raw inbound payload. Adapters call it from their
// own goroutines; the dispatcher is responsible for its own locking.
type DeliverFunc func(raw []byte)

// Transport is one best-effort delivery channel.
type Transport interface {
	// Name identifies the adapter in logs.
	Name() string
	// Start begins delivering inbound payloads to deliver until ctx ends.
	Start(ctx context.Context, deliver DeliverFunc) error
	// Send attempts delivery and reports whether the attempt was made
	// successfully. It never blocks for acknowledgement and never panics.
	Send(raw []byte) bool
	// Close releases the adapter's resources.
	Close() error
}

// PeerAddressable is implemented by adapters that can learn a peer address
// after construction (the direct link, whose peer is discovered through
// another transport).
type PeerAddressable interface {
	SetPeerAddr(addr string)
}

// Group fans outbound payloads across all configured adapters. Any slot may
// be nil; the group simply has fewer channels then.
type Group struct {
	Broadcast Transport
	Direct    Transport
	Relay     Transport

	log *log.Logger
}

// NewGroup assembles a fan-out group. logger may be nil.
func NewGroup(broadcast, direct, relay Transport, logger *log.Logger) *Group {
	return &Group{Broadcast: broadcast, Direct: direct, Relay: relay, log: logger}
}

// Start starts every adapter with the same delivery callback. Adapters that
// fail to start are logged and dropped from the group rather than failing
// the caller; losing one channel is a degraded mode, not an error.
func (g *Group) Start(ctx context.Context, deliver DeliverFunc) {
	for _, slot := range []*Transport{&g.Broadcast, &g.Direct, &g.Relay} {
		t := *slot
		if t == nil {
			continue
		}
		if err := t.Start(ctx, deliver); err != nil {
			if g.log != nil {
				g.log.Printf("transport %s unavailable: %v", t.Name(), err)
			}
			*slot = nil
		}
	}
}

// Send fans raw out over every adapter. useRelay=false skips the mailbox
// file, used for high-frequency payloads where disk churn costs more than
// the extra channel is worth. Returns the number of adapters that accepted
// the payload.
func (g *Group) Send(raw []byte, useRelay bool) int {
	n := 0
	if g.Broadcast != nil && g.Broadcast.Send(raw) {
		n++
	}
	if g.Direct != nil && g.Direct.Send(raw) {
		n++
	}
	if useRelay && g.Relay != nil && g.Relay.Send(raw) {
		n++
	}
	return n
}

// SetDirectPeer forwards a learned peer address to the direct adapter, if
// one is present and supports it.
func (g *Group) SetDirectPeer(addr string) {
	if addr == "" {
		return
	}
	if pa, ok := g.Direct.(PeerAddressable); ok {
		pa.SetPeerAddr(addr)
	}
}

// Close closes every adapter.
func (g *Group) Close() {
	for _, t := range []Transport{g.Broadcast, g.Direct, g.Relay} {
		if t != nil {
			_ = t.Close()
		}
	}
}
