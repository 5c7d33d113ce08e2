// Stagectl is the command-line client for monitoring and controlling a
// running stagelinkd instance. It connects over HTTP and WebSocket to query
// status, stream live sync events, and drive control-side actions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/lumen-foundry/stagelink/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8420", "StageLink daemon URL")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter sync_status,log)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand arguments are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host)

	case "params":
		err = ctl.Params(*host)

	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{Filter: *filter, JSON: *jsonOut})

	// ── Control commands ──────────────────────────────────────────
	case "push":
		err = ctl.Push(*host, *jsonOut)

	case "command":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: stagectl command <name>")
			break
		}
		err = ctl.Command(*host, subArgs[0], *jsonOut)

	case "autosync":
		if len(subArgs) < 1 || (subArgs[0] != "on" && subArgs[0] != "off") {
			err = fmt.Errorf("usage: stagectl autosync on|off")
			break
		}
		err = ctl.AutoSync(*host, subArgs[0] == "on", *jsonOut)

	case "popout":
		err = ctl.Popout(*host, *jsonOut)

	// ── Preset commands ───────────────────────────────────────────
	case "presets":
		err = ctl.PresetList(*host, *jsonOut)

	case "preset-save":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: stagectl preset-save <name>")
			break
		}
		err = ctl.PresetSave(*host, subArgs[0], *jsonOut)

	case "preset-load":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: stagectl preset-load <name>")
			break
		}
		err = ctl.PresetLoad(*host, subArgs[0], *jsonOut)

	case "preset-delete":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: stagectl preset-delete <name>")
			break
		}
		err = ctl.PresetDelete(*host, subArgs[0], *jsonOut)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "stagectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `stagectl — StageLink control CLI

Usage:
  stagectl [flags] <command> [args]

Query commands:
  status          Show daemon role, link state, and uptime
  health          Check daemon liveness
  version         Show daemon build info
  config          Dump effective configuration
  params          Dump live scene parameters
  watch           Stream live sync events (Ctrl-C to stop)

Control commands:
  push            Force an immediate full-state snapshot push
  command <name>  Send a one-shot command to the receiver
  autosync on|off Toggle the automatic snapshot/feature streams
  popout          Spawn a receiver process from the control daemon

Preset commands:
  presets               List saved presets
  preset-save <name>    Save current parameters as a preset
  preset-load <name>    Load a preset and push it
  preset-delete <name>  Delete a preset

Flags:
  -H, --host      Daemon URL (default http://127.0.0.1:8420)
      --json      Raw JSON output
      --filter    Event type filter for watch
`)
}
