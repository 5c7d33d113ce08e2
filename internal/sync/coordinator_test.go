package sync

import (
	"encoding/json"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumen-foundry/stagelink/internal/features"
	"github.com/lumen-foundry/stagelink/internal/scene"
)

// fakeSender records everything the coordinator hands the transport layer,
// decoded back into envelopes so tests can assert per message type.
type fakeSender struct {
	mu       stdsync.Mutex
	sent     []Envelope
	relay    []bool
	peerAddr string
}

func (f *fakeSender) Send(raw []byte, useRelay bool) int {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		panic("coordinator sent an undecodable envelope: " + err.Error())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	f.relay = append(f.relay, useRelay)
	return 1
}

func (f *fakeSender) SetDirectPeer(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peerAddr = addr
}

func (f *fakeSender) byType(t MsgType) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSender) directPeer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peerAddr
}

func newTestCoordinator(t *testing.T, role Role) (*Coordinator, *fakeSender, *scene.MemoryEngine) {
	t.Helper()
	out := &fakeSender{}
	eng := scene.NewMemoryEngine(nil)
	c := New(Options{Role: role, Engine: eng, Out: out})
	return c, out, eng
}

// peerEnvelope builds an inbound envelope as if sent by a remote peer.
func peerEnvelope(t *testing.T, typ MsgType, payload any, target, senderID string, now time.Time) Envelope {
	t.Helper()
	env, err := NewEnvelope(typ, payload, target, senderID, now)
	require.NoError(t, err)
	return env
}

func TestSoloSendsNothing(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleSolo)
	t0 := time.Unix(1000, 0)

	c.Start(t0)
	for i := 0; i < 100; i++ {
		c.Tick(t0.Add(time.Duration(i) * 150 * time.Millisecond))
	}
	c.Dispatch(peerEnvelope(t, MsgHello, HelloPayload{Role: RoleControl}, TargetAny, "peer-1", t0), t0)

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Empty(t, out.sent)
	require.False(t, c.Status().Connected)
}

func TestReceiverStartupAnnounces(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	c.Start(t0)

	require.Len(t, out.byType(MsgHello), 1)
	reqs := out.byType(MsgRequestSnapshot)
	require.Len(t, reqs, 1)
	require.Equal(t, string(RoleControl), reqs[0].Target)
}

func TestControlHelloReplyAndImmediatePush(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	hello := peerEnvelope(t, MsgHello, HelloPayload{Role: RoleReceiver, DirectAddr: "127.0.0.1:7421"}, TargetAny, "recv-1", t0)
	c.Dispatch(hello, t0)

	st := c.Status()
	require.True(t, st.Connected)
	require.Equal(t, "recv-1", st.RemoteID)
	require.Equal(t, RoleReceiver, st.RemoteRole)

	// Reply hello plus one forced snapshot, no throttle wait.
	require.Len(t, out.byType(MsgHello), 1)
	require.Len(t, out.byType(MsgParamsSnapshot), 1)
	require.Equal(t, "127.0.0.1:7421", out.directPeer())
}

func TestReceiverRepliesToHelloOnlyOnce(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	hello := peerEnvelope(t, MsgHello, HelloPayload{Role: RoleControl}, TargetAny, "ctrl-1", t0)
	c.Dispatch(hello, t0)
	require.Len(t, out.byType(MsgHello), 1, "first hello from a new control gets a reply")

	// The control replies to our reply; answering again would ping-pong.
	c.Dispatch(peerEnvelope(t, MsgHello, HelloPayload{Role: RoleControl}, TargetAny, "ctrl-1", t0.Add(time.Second)), t0.Add(time.Second))
	require.Len(t, out.byType(MsgHello), 1)

	// A replaced control (new identity) is announced to again.
	c.Dispatch(peerEnvelope(t, MsgHello, HelloPayload{Role: RoleControl}, TargetAny, "ctrl-2", t0.Add(2*time.Second)), t0.Add(2*time.Second))
	require.Len(t, out.byType(MsgHello), 2)
}

func TestSelfEchoIgnored(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	echo := peerEnvelope(t, MsgHello, HelloPayload{Role: RoleReceiver}, TargetAny, c.ID(), t0)
	c.Dispatch(echo, t0)

	require.False(t, c.Status().Connected)
	out.mu.Lock()
	defer out.mu.Unlock()
	require.Empty(t, out.sent)
}

func TestTargetMismatchIgnored(t *testing.T) {
	c, _, eng := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	// Addressed to control; a receiver must not act on it.
	cmd := peerEnvelope(t, MsgCommand, CommandPayload{Name: "toggleFullscreen"}, string(RoleControl), "ctrl-1", t0)
	c.Dispatch(cmd, t0)

	require.False(t, eng.Fullscreen())
}

func TestLivenessTimeoutWindow(t *testing.T) {
	c, _, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	var transitions []bool
	c.OnStatus(func(s Status) { transitions = append(transitions, s.Connected) })

	c.Dispatch(peerEnvelope(t, MsgHeartbeat, HeartbeatPayload{Role: RoleReceiver}, TargetAny, "recv-1", t0), t0)
	require.True(t, c.Status().Connected)

	// Two heartbeat intervals plus grace: 10.8s. Inside the window the link
	// holds even with total silence.
	c.Tick(t0.Add(10*time.Second + 700*time.Millisecond))
	require.True(t, c.Status().Connected)

	c.Tick(t0.Add(10*time.Second + 900*time.Millisecond))
	require.False(t, c.Status().Connected)

	// Further silent ticks must not re-fire the listener.
	c.Tick(t0.Add(12 * time.Second))
	c.Tick(t0.Add(13 * time.Second))
	require.Equal(t, []bool{true, false}, transitions)
}

func TestHeartbeatCadence(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	c.Start(t0)
	c.Tick(t0.Add(4 * time.Second))
	require.Empty(t, out.byType(MsgHeartbeat))

	c.Tick(t0.Add(5 * time.Second))
	require.Len(t, out.byType(MsgHeartbeat), 1)

	c.Tick(t0.Add(5*time.Second + 150*time.Millisecond))
	require.Len(t, out.byType(MsgHeartbeat), 1)

	c.Tick(t0.Add(10 * time.Second))
	require.Len(t, out.byType(MsgHeartbeat), 2)
}

func TestSnapshotSentOnlyOnChange(t *testing.T) {
	c, out, eng := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	// First pass establishes the baseline serialization.
	c.Tick(t0)
	require.Len(t, out.byType(MsgParamsSnapshot), 1)

	// Unchanged state past the throttle window: no traffic.
	c.Tick(t0.Add(time.Second))
	c.Tick(t0.Add(2 * time.Second))
	require.Len(t, out.byType(MsgParamsSnapshot), 1)

	// A change inside the throttle window waits for the window to pass.
	p := eng.Params()
	p.FogDensity = 0.05
	eng.SetParams(p)
	c.Tick(t0.Add(2*time.Second + 100*time.Millisecond))
	require.Len(t, out.byType(MsgParamsSnapshot), 1)

	c.Tick(t0.Add(3 * time.Second))
	snaps := out.byType(MsgParamsSnapshot)
	require.Len(t, snaps, 2)

	var sent scene.Params
	require.NoError(t, json.Unmarshal(snaps[1].Payload, &sent))
	require.Equal(t, 0.05, sent.FogDensity)
}

func TestSnapshotSuppressedWhileAutoSyncOff(t *testing.T) {
	c, out, eng := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	c.SetAutoSync(false)
	p := eng.Params()
	p.Theme = "ember"
	eng.SetParams(p)
	c.Tick(t0.Add(time.Second))
	require.Empty(t, out.byType(MsgParamsSnapshot))

	// Forced pushes bypass the autosync gate.
	c.PushNow(t0.Add(2 * time.Second))
	require.Len(t, out.byType(MsgParamsSnapshot), 1)
}

func TestRequestSnapshotTriggersPush(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	req := peerEnvelope(t, MsgRequestSnapshot, struct{}{}, string(RoleControl), "recv-1", t0)
	c.Dispatch(req, t0)
	require.Len(t, out.byType(MsgParamsSnapshot), 1)
}

func TestFeaturesThrottleAndGating(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)
	frame := map[string]any{"level": 0.7, "beat": true}

	// Before any peer has appeared frames still flow: a receiver may already
	// be listening on the broadcast bus.
	c.HandleLocalFeatures(frame, t0)
	require.Len(t, out.byType(MsgFeatures), 1)

	// Inside the 33 ms throttle window.
	c.HandleLocalFeatures(frame, t0.Add(10*time.Millisecond))
	require.Len(t, out.byType(MsgFeatures), 1)

	c.HandleLocalFeatures(frame, t0.Add(40*time.Millisecond))
	require.Len(t, out.byType(MsgFeatures), 2)

	// Autosync off stops the stream.
	c.SetAutoSync(false)
	c.HandleLocalFeatures(frame, t0.Add(100*time.Millisecond))
	require.Len(t, out.byType(MsgFeatures), 2)
	c.SetAutoSync(true)

	// A peer that connected and then timed out stops the stream too.
	c.Dispatch(peerEnvelope(t, MsgHeartbeat, HeartbeatPayload{Role: RoleReceiver}, TargetAny, "recv-1", t0.Add(time.Second)), t0.Add(time.Second))
	c.Tick(t0.Add(30 * time.Second))
	require.False(t, c.Status().Connected)
	c.HandleLocalFeatures(frame, t0.Add(31*time.Second))
	require.Len(t, out.byType(MsgFeatures), 2)
}

func TestReceiverAppliesSnapshot(t *testing.T) {
	c, _, eng := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	var applied []scene.Applied
	c.SetSnapshotAppliedHook(func(a scene.Applied) { applied = append(applied, a) })

	snap := peerEnvelope(t, MsgParamsSnapshot,
		map[string]any{"outerShell": map[string]any{"densityScale": 2.0}},
		string(RoleReceiver), "ctrl-1", t0)
	c.Dispatch(snap, t0)

	p := eng.Params()
	require.Equal(t, 2.0, p.OuterShell.DensityScale)
	require.True(t, p.OuterShell.Enabled, "omitted sibling fields keep their values")
	require.Equal(t, 7, p.OuterShell.Seed)
	require.Equal(t, 1, eng.Rebuilds())

	require.Len(t, applied, 1)
	require.True(t, applied[0].ParticleRebuild)
	require.False(t, c.Status().LastSnapshotAt.IsZero())
}

func TestControlIgnoresSnapshot(t *testing.T) {
	c, _, eng := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	snap := peerEnvelope(t, MsgParamsSnapshot,
		map[string]any{"theme": "ember"}, TargetAny, "other-ctrl", t0)
	c.Dispatch(snap, t0)

	require.Equal(t, "nebula", eng.Params().Theme)
}

func TestReceiverFeatureFrames(t *testing.T) {
	c, _, _ := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	var got []float64
	c.SetFeaturesHandler(func(f features.Frame) { got = append(got, f.Level) })

	env := peerEnvelope(t, MsgFeatures, map[string]any{"level": 0.42, "bpm": 128.0}, string(RoleReceiver), "ctrl-1", t0)
	c.Dispatch(env, t0)

	require.Equal(t, []float64{0.42}, got)

	frame, ok := c.LatestFeatures(t0.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, 128.0, frame.BPM)

	// Past the staleness window the frame is withheld.
	_, ok = c.LatestFeatures(t0.Add(3 * time.Second))
	require.False(t, ok)
}

func TestCommands(t *testing.T) {
	c, _, eng := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	dispatch := func(name string) {
		env := peerEnvelope(t, MsgCommand, CommandPayload{Name: name}, string(RoleReceiver), "ctrl-1", t0)
		c.Dispatch(env, t0)
	}

	dispatch("enterFullscreen")
	require.True(t, eng.Fullscreen())
	dispatch("toggleFullscreen")
	require.False(t, eng.Fullscreen())
	dispatch("exitFullscreen")
	require.False(t, eng.Fullscreen())

	dispatch("explosion")
	require.Equal(t, []string{"explosion"}, eng.Effects())

	// Unknown commands are silent no-ops.
	dispatch("definitelyNotACommand")
	require.Equal(t, []string{"explosion"}, eng.Effects())
	require.False(t, eng.Fullscreen())
}

func TestPadEventForwardedVerbatim(t *testing.T) {
	c, _, _ := newTestCoordinator(t, RoleReceiver)
	t0 := time.Unix(1000, 0)

	var got []PadEventPayload
	c.SetPadEventHandler(func(ev PadEventPayload) { got = append(got, ev) })

	want := PadEventPayload{Key: "q", Action: "engage", T: t0.UnixMilli()}
	c.Dispatch(peerEnvelope(t, MsgPadEvent, want, string(RoleReceiver), "ctrl-1", t0), t0)

	require.Equal(t, []PadEventPayload{want}, got)
}

func TestStatusListenerDedupe(t *testing.T) {
	c, _, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	var fired int
	c.OnStatus(func(Status) { fired++ })

	hb := func(at time.Time) {
		c.Dispatch(peerEnvelope(t, MsgHeartbeat, HeartbeatPayload{Role: RoleReceiver}, TargetAny, "recv-1", at), at)
	}
	hb(t0)
	hb(t0.Add(5 * time.Second))
	hb(t0.Add(10 * time.Second))
	require.Equal(t, 1, fired, "repeat heartbeats from the same peer are not transitions")

	c.SetAutoSync(false)
	require.Equal(t, 2, fired)
	c.SetAutoSync(false)
	require.Equal(t, 2, fired, "setting the same value again is not a transition")
}

func TestStatusListenerPanicIsolated(t *testing.T) {
	c, _, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	var second int
	c.OnStatus(func(Status) { panic("listener bug") })
	c.OnStatus(func(Status) { second++ })

	c.Dispatch(peerEnvelope(t, MsgHeartbeat, HeartbeatPayload{Role: RoleReceiver}, TargetAny, "recv-1", t0), t0)
	require.Equal(t, 1, second)
}

func TestInvalidRoleDegradesToSolo(t *testing.T) {
	c := New(Options{Role: Role("projector")})
	require.Equal(t, RoleSolo, c.Role())
}

// queuedBus wires two coordinators together through an in-memory queue. Real
// transports deliver from their own goroutines; the queue keeps the test
// single-threaded while preserving the store-and-forward shape.
type queuedBus struct {
	queue []queuedDelivery
}

type queuedDelivery struct {
	to  *Coordinator
	env Envelope
}

type busSender struct {
	bus *queuedBus
	to  *Coordinator

	// relayOnly models a deployment where the mailbox file is the only
	// working channel: payloads sent with useRelay=false are dropped.
	relayOnly bool
}

func (s *busSender) Send(raw []byte, useRelay bool) int {
	if s.relayOnly && !useRelay {
		return 0
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return 0
	}
	s.bus.queue = append(s.bus.queue, queuedDelivery{to: s.to, env: env})
	return 1
}

func (s *busSender) SetDirectPeer(string) {}

func (b *queuedBus) pump(now time.Time) {
	for len(b.queue) > 0 {
		d := b.queue[0]
		b.queue = b.queue[1:]
		d.to.Dispatch(d.env, now)
	}
}

func TestEndToEndHandshakeConverges(t *testing.T) {
	bus := &queuedBus{}
	ctrlEng := scene.NewMemoryEngine(nil)
	recvEng := scene.NewMemoryEngine(nil)

	ctrl := New(Options{Role: RoleControl, Engine: ctrlEng, Out: nil})
	recv := New(Options{Role: RoleReceiver, Engine: recvEng, Out: nil})
	ctrl.out = &busSender{bus: bus, to: recv}
	recv.out = &busSender{bus: bus, to: ctrl}

	t0 := time.Unix(1000, 0)

	// Control is already up when the receiver starts. The queue draining to
	// empty proves the hello exchange terminates instead of ping-ponging.
	ctrl.Start(t0)
	bus.pump(t0)
	recv.Start(t0.Add(time.Second))
	bus.pump(t0.Add(time.Second))

	require.True(t, ctrl.Status().Connected)
	require.True(t, recv.Status().Connected)

	// Control-side change propagates on the next tick past the throttle.
	p := ctrlEng.Params()
	p.Theme = "glacier"
	ctrlEng.SetParams(p)
	ctrl.Tick(t0.Add(2 * time.Second))
	bus.pump(t0.Add(2 * time.Second))

	require.Equal(t, "glacier", recvEng.Params().Theme)
	require.Equal(t, 1, recvEng.ThemeApplies())
}

func TestRelayOnlyLinkStaysConnected(t *testing.T) {
	bus := &queuedBus{}
	ctrl := New(Options{Role: RoleControl, Engine: scene.NewMemoryEngine(nil)})
	recv := New(Options{Role: RoleReceiver, Engine: scene.NewMemoryEngine(nil)})
	ctrl.out = &busSender{bus: bus, to: recv, relayOnly: true}
	recv.out = &busSender{bus: bus, to: ctrl, relayOnly: true}

	t0 := time.Unix(1000, 0)
	ctrl.Start(t0)
	recv.Start(t0)
	bus.pump(t0)

	require.True(t, ctrl.Status().Connected)
	require.True(t, recv.Status().Connected)

	// Well past the 10.8 s disconnect window with only the mailbox channel
	// carrying traffic: heartbeats must keep both sides alive.
	for d := 150 * time.Millisecond; d <= 15*time.Second; d += 150 * time.Millisecond {
		now := t0.Add(d)
		ctrl.Tick(now)
		recv.Tick(now)
		bus.pump(now)
	}

	require.True(t, ctrl.Status().Connected, "control lost the receiver despite live heartbeats")
	require.True(t, recv.Status().Connected, "receiver lost the control despite live heartbeats")
}

func TestDiscreteSendsUseRelay(t *testing.T) {
	c, out, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	c.SendPadEvent(PadEventPayload{Key: "q", Action: "release", T: t0.UnixMilli()}, t0)
	c.Tick(t0.Add(6 * time.Second)) // past the heartbeat interval
	c.HandleLocalFeatures(map[string]any{"level": 0.5}, t0.Add(7*time.Second))

	out.mu.Lock()
	sent := append([]Envelope(nil), out.sent...)
	relay := append([]bool(nil), out.relay...)
	out.mu.Unlock()
	for i, env := range sent {
		switch env.Type {
		case MsgPadEvent, MsgHeartbeat:
			// Discrete, never-retransmitted (pad) or liveness-critical
			// (heartbeat) payloads must reach the relay channel.
			require.True(t, relay[i], "%s skipped the relay", env.Type)
		case MsgFeatures:
			require.False(t, relay[i], "the 30 Hz stream must skip the relay")
		}
	}
	require.NotEmpty(t, out.byType(MsgPadEvent))
	require.NotEmpty(t, out.byType(MsgHeartbeat))
	require.NotEmpty(t, out.byType(MsgFeatures))
}

func TestPeerReplacementNotifiesListeners(t *testing.T) {
	c, _, _ := newTestCoordinator(t, RoleControl)
	t0 := time.Unix(1000, 0)

	var seen []string
	c.OnStatus(func(s Status) { seen = append(seen, s.RemoteID) })

	c.Dispatch(peerEnvelope(t, MsgHeartbeat, HeartbeatPayload{Role: RoleReceiver}, TargetAny, "recv-1", t0), t0)
	require.Equal(t, []string{"recv-1"}, seen)

	// The receiver reloads inside the timeout window: the link never drops,
	// but the new identity must still reach the listeners.
	c.Dispatch(peerEnvelope(t, MsgHeartbeat, HeartbeatPayload{Role: RoleReceiver}, TargetAny, "recv-2", t0.Add(2*time.Second)), t0.Add(2*time.Second))
	require.Equal(t, []string{"recv-1", "recv-2"}, seen)
	require.Equal(t, "recv-2", c.Status().RemoteID)
	require.True(t, c.Status().Connected)
}
