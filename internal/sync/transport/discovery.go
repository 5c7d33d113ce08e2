package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsService is the service type control announces on the local network so
// receivers started independently can find its direct address without
// configuration.
const mdnsService = "_stagelink._tcp"

// Announce registers the control endpoint over mDNS. The returned function
// withdraws the announcement. Announcement failure is not fatal; discovery
// is a convenience on top of the other channels, so errors only log.
func Announce(instance string, port int, logger *log.Logger) func() {
	server, err := zeroconf.Register(instance, mdnsService, "local.", port,
		[]string{"proto=1"}, nil)
	if err != nil {
		if logger != nil {
			logger.Printf("mdns announce failed: %v", err)
		}
		return func() {}
	}
	if logger != nil {
		logger.Printf("mdns: announced %s on port %d", instance, port)
	}
	return server.Shutdown
}

// DiscoverControl browses for an announced control endpoint for at most
// timeout and returns its dial address. ok is false when nothing answered.
func DiscoverControl(ctx context.Context, timeout time.Duration, logger *log.Logger) (addr string, ok bool) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		if logger != nil {
			logger.Printf("mdns resolver failed: %v", err)
		}
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	found := make(chan string, 1)
	go func() {
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			select {
			case found <- fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port):
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return "", false
	}

	select {
	case a := <-found:
		return a, true
	case <-ctx.Done():
		return "", false
	}
}
