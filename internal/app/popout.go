package app

import (
	"fmt"
	"os"
	"os/exec"
)

// spawnReceiver launches a receiver process of this same binary, pointed at
// this control's direct endpoint, the popup-window analog. The child shares
// the relay directory and Redis so it stays reachable even if the direct
// link never comes up. Returns the child's pid as a string.
func (a *App) spawnReceiver() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}

	cmd := exec.Command(self, "--role", "receiver", "--bind", "127.0.0.1:0")
	cmd.Env = append(os.Environ(),
		"STAGELINK_ROLE=receiver",
		"STAGELINK_CONTROL_ADDR="+a.cfg.Transport.DirectBind,
		"STAGELINK_RELAY_DIR="+a.cfg.Transport.RelayDir,
		"STAGELINK_REDIS_ADDR="+a.cfg.Transport.RedisAddr,
		// A child listening on the control's HTTP or direct ports would
		// collide; disable both.
		"STAGELINK_DIRECT_BIND=",
		"STAGELINK_BIND=127.0.0.1:0",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", err
	}
	pid := cmd.Process.Pid
	// Reap the child in the background so it never zombies.
	go func() { _ = cmd.Wait() }()

	a.log.Printf("spawned receiver pid %d", pid)
	return fmt.Sprintf("%d", pid), nil
}
