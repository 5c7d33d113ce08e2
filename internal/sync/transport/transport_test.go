package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubTransport is an in-memory Transport for group fan-out tests.
type stubTransport struct {
	name     string
	startErr error
	sendOK   bool

	mu   sync.Mutex
	sent [][]byte
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Start(ctx context.Context, deliver DeliverFunc) error {
	return s.startErr
}

func (s *stubTransport) Send(raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, raw)
	return s.sendOK
}

func (s *stubTransport) Close() error { return nil }

func (s *stubTransport) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestGroupFanOut(t *testing.T) {
	b := &stubTransport{name: "broadcast", sendOK: true}
	d := &stubTransport{name: "direct", sendOK: true}
	r := &stubTransport{name: "relay", sendOK: true}
	g := NewGroup(b, d, r, nil)
	g.Start(context.Background(), func([]byte) {})

	n := g.Send([]byte("x"), true)
	require.Equal(t, 3, n)

	// useRelay=false skips the mailbox but keeps the other two.
	n = g.Send([]byte("y"), false)
	require.Equal(t, 2, n)
	require.Equal(t, 1, r.sendCount())
	require.Equal(t, 2, b.sendCount())
}

func TestGroupDropsFailedAdapter(t *testing.T) {
	b := &stubTransport{name: "broadcast", startErr: context.DeadlineExceeded}
	d := &stubTransport{name: "direct", sendOK: true}
	g := NewGroup(b, d, nil, nil)
	g.Start(context.Background(), func([]byte) {})

	require.Nil(t, g.Broadcast, "an adapter that fails to start leaves the group")
	require.Equal(t, 1, g.Send([]byte("x"), true))
}

func TestGroupCountsOnlyAcceptedSends(t *testing.T) {
	d := &stubTransport{name: "direct", sendOK: false}
	g := NewGroup(nil, d, nil, nil)
	require.Equal(t, 0, g.Send([]byte("x"), true))
}

func TestRelayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv := NewRelay(dir, nil)
	got := make(chan []byte, 4)
	require.NoError(t, recv.Start(ctx, func(raw []byte) {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		got <- cp
	}))
	defer recv.Close()

	send := NewRelay(dir, nil)
	require.True(t, send.Send([]byte(`{"type":"hello"}`)))

	select {
	case raw := <-got:
		require.JSONEq(t, `{"type":"hello"}`, string(raw))
	case <-time.After(3 * time.Second):
		t.Fatal("mailbox write was not delivered")
	}
}

func TestRelayOverwriteDelivers(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRelay(dir, nil)
	got := make(chan string, 8)
	require.NoError(t, r.Start(ctx, func(raw []byte) { got <- string(raw) }))
	defer r.Close()

	// Consecutive sends reuse the one mailbox file; each overwrite must still
	// produce a delivery.
	require.True(t, r.Send([]byte(`{"n":1}`)))
	waitFor(t, got, `{"n":1}`)
	require.True(t, r.Send([]byte(`{"n":2}`)))
	waitFor(t, got, `{"n":2}`)
}

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("never saw %s", want)
		}
	}
}

func TestDirectLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewDirect("127.0.0.1:0", nil)
	listenerGot := make(chan []byte, 4)
	require.NoError(t, listener.Start(ctx, func(raw []byte) { listenerGot <- raw }))
	defer listener.Close()
	require.NotEmpty(t, listener.Addr())

	dialer := NewDirect("", nil)
	dialerGot := make(chan []byte, 4)
	require.NoError(t, dialer.Start(ctx, func(raw []byte) { dialerGot <- raw }))
	defer dialer.Close()

	dialer.SetPeerAddr(listener.Addr())

	// The dial happens in the background with backoff; wait for the first
	// successful write rather than sleeping a fixed amount.
	require.Eventually(t, func() bool {
		return dialer.Send([]byte("up"))
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case raw := <-listenerGot:
		require.Equal(t, "up", string(raw))
	case <-time.After(3 * time.Second):
		t.Fatal("dialer message never reached the listener")
	}

	// Same link, opposite direction.
	require.Eventually(t, func() bool {
		return listener.Send([]byte("down"))
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case raw := <-dialerGot:
		require.Equal(t, "down", string(raw))
	case <-time.After(3 * time.Second):
		t.Fatal("listener message never reached the dialer")
	}
}

func TestDirectSendWithoutPeer(t *testing.T) {
	d := NewDirect("", nil)
	require.NoError(t, d.Start(context.Background(), func([]byte) {}))
	require.False(t, d.Send([]byte("x")), "no connection is a miss, not an error")
}
