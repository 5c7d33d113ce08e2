package transport

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// syncPath is the WebSocket endpoint the direct link uses on both ends.
const syncPath = "/sync"

// Direct is the point-to-point WebSocket adapter. Control listens; a
// receiver dials. The adapter has no discovery of its own: it only starts
// delivering once a peer address is learned through configuration, the
// popout spawn, or a hello payload arriving over another transport.
type Direct struct {
	bind string
	log  *log.Logger

	mu       sync.Mutex
	peerAddr string
	conns    map[*websocket.Conn]struct{}
	listen   net.Listener
	deliver  DeliverFunc
	ctx      context.Context

	server   *http.Server
	upgrader websocket.Upgrader
}

// NewDirect returns a direct adapter. bind is the listen address for the
// inbound side ("" disables listening; a pure dialer). logger may be nil.
func NewDirect(bind string, logger *log.Logger) *Direct {
	return &Direct{
		bind:  bind,
		log:   logger,
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (d *Direct) Name() string { return "direct" }

// Start begins listening (if a bind address is configured) and records the
// delivery callback for connections established later via SetPeerAddr.
func (d *Direct) Start(ctx context.Context, deliver DeliverFunc) error {
	d.mu.Lock()
	d.deliver = deliver
	d.ctx = ctx
	d.mu.Unlock()

	if d.bind == "" {
		return nil
	}

	ln, err := net.Listen("tcp", d.bind)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(syncPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.addConn(conn)
	})

	d.mu.Lock()
	d.listen = ln
	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.mu.Unlock()

	go func() { _ = d.server.Serve(ln) }()
	go func() {
		<-ctx.Done()
		_ = d.server.Shutdown(context.Background())
	}()
	return nil
}

// Addr returns the address a peer should dial to reach this adapter, or ""
// when the adapter is not listening. Carried in hello payloads so a peer
// discovered over broadcast or relay can upgrade to the direct link.
func (d *Direct) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listen == nil {
		return ""
	}
	return d.listen.Addr().String()
}

// SetPeerAddr records the peer's dial address and, if no connection exists
// yet, starts dialing it with exponential backoff until the adapter closes.
func (d *Direct) SetPeerAddr(addr string) {
	d.mu.Lock()
	if addr == "" || addr == d.peerAddr || d.ctx == nil {
		d.mu.Unlock()
		return
	}
	d.peerAddr = addr
	ctx := d.ctx
	d.mu.Unlock()

	go d.dialLoop(ctx, addr)
}

// dialLoop keeps one outbound connection to addr alive. Each successful
// connection is pumped until it drops, then the dial restarts from a fresh
// backoff. The loop ends when ctx is cancelled or the peer address changes.
func (d *Direct) dialLoop(ctx context.Context, addr string) {
	url := addr
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}
	if !strings.HasSuffix(url, syncPath) {
		url += syncPath
	}

	for ctx.Err() == nil {
		if d.currentPeerAddr() != addr {
			return
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 250 * time.Millisecond
		bo.MaxInterval = 10 * time.Second
		bo.MaxElapsedTime = 0 // retry until cancelled

		var conn *websocket.Conn
		err := backoff.Retry(func() error {
			if ctx.Err() != nil || d.currentPeerAddr() != addr {
				return backoff.Permanent(context.Canceled)
			}
			c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, backoff.WithContext(bo, ctx))
		if err != nil || conn == nil {
			return
		}

		if d.log != nil {
			d.log.Printf("direct link established to %s", addr)
		}
		d.addConnBlocking(conn)
	}
}

func (d *Direct) currentPeerAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peerAddr
}

// addConn registers conn and pumps it in the background (inbound side).
func (d *Direct) addConn(conn *websocket.Conn) {
	go d.addConnBlocking(conn)
}

// addConnBlocking registers conn and reads it until it drops.
func (d *Direct) addConnBlocking(conn *websocket.Conn) {
	d.mu.Lock()
	d.conns[conn] = struct{}{}
	deliver := d.deliver
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if deliver != nil {
			deliver(raw)
		}
	}
}

// Send writes raw to every live connection. Reports true if at least one
// write succeeded; a send with no peer connection is a normal miss, not an
// error.
func (d *Direct) Send(raw []byte) bool {
	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	ok := false
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(3 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, raw); err == nil {
			ok = true
		}
	}
	return ok
}

func (d *Direct) Close() error {
	d.mu.Lock()
	conns := d.conns
	d.conns = make(map[*websocket.Conn]struct{})
	srv := d.server
	d.mu.Unlock()

	for c := range conns {
		_ = c.Close()
	}
	if srv != nil {
		return srv.Shutdown(context.Background())
	}
	return nil
}
