package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
}

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal in a human-readable format until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "connected"), colorize(dim, u.String()))
		if len(opts.Filter) > 0 {
			fmt.Printf("  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))
		fmt.Println()
	}

	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var ev map[string]any
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			evType, _ := ev["type"].(string)
			if len(filterSet) > 0 && !filterSet[evType] {
				continue
			}

			if opts.JSON {
				fmt.Println(string(msg))
			} else {
				renderEvent(evType, ev)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(colorize(dim, "  interrupted"))
		}
		return nil
	case <-done:
		return fmt.Errorf("connection closed by daemon")
	}
}

// renderEvent prints one event in the compact human format.
func renderEvent(evType string, ev map[string]any) {
	ts, _ := ev["ts"].(string)
	if len(ts) > 19 {
		ts = ts[11:19] // HH:MM:SS
	}
	stamp := colorize(dim, ts)

	switch evType {
	case "sync_status":
		connected, _ := ev["connected"].(bool)
		link := colorize(red, "disconnected")
		if connected {
			link = colorize(green, "connected")
			if rr, _ := ev["remoteRole"].(string); rr != "" {
				link += colorize(dim, " ("+rr+")")
			}
		}
		auto := "autosync off"
		if on, _ := ev["autoSync"].(bool); on {
			auto = "autosync on"
		}
		fmt.Printf("  %s  %s %s  %s\n", stamp, colorize(bold, "SYNC"), link, colorize(dim, auto))

	case "snapshot_applied":
		detail := "params"
		if rb, _ := ev["particleRebuild"].(bool); rb {
			detail += " +rebuild"
		}
		if th, _ := ev["themeReapplied"].(bool); th {
			detail += " +theme"
		}
		fmt.Printf("  %s  %s %s\n", stamp, colorize(cyan, "APPLY"), detail)

	case "command":
		name, _ := ev["name"].(string)
		fmt.Printf("  %s  %s %s\n", stamp, colorize(yellow, "CMD"), name)

	case "pad":
		key, _ := ev["key"].(string)
		action, _ := ev["action"].(string)
		fmt.Printf("  %s  %s %s %s\n", stamp, colorize(blue, "PAD"), key, colorize(dim, action))

	case "log":
		msg, _ := ev["message"].(string)
		level, _ := ev["level"].(string)
		lc := dim
		if level == "error" {
			lc = red
		}
		fmt.Printf("  %s  %s %s\n", stamp, colorize(lc, strings.ToUpper(level)), msg)

	default:
		b, _ := json.Marshal(ev)
		fmt.Printf("  %s  %s\n", stamp, string(b))
	}
}
