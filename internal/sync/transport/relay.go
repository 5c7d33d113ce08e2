package transport

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// MailboxFile is the fixed, versioned name of the relay file. Every
// StageLink process on the host that shares the relay directory sees writes
// to it, which makes this the transport of last resort: it needs no peer
// address and no external service.
const MailboxFile = "stagelink.mailbox.v1.json"

// Relay delivers envelopes by rewriting a single mailbox file and watching
// it for changes. The envelope nonce guarantees consecutive sends differ
// byte-wise, so every send produces a change event even when the logical
// payload repeats. The writer sees its own change events; the dispatcher's
// sender-identity filter discards them.
type Relay struct {
	dir       string
	path      string
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	log       *log.Logger
}

// NewRelay returns a relay rooted at dir. The directory is created on Start.
func NewRelay(dir string, logger *log.Logger) *Relay {
	return &Relay{dir: dir, path: filepath.Join(dir, MailboxFile), log: logger}
}

func (r *Relay) Name() string { return "relay" }

// Start watches the relay directory and forwards mailbox contents to deliver
// on every write. Watching the directory rather than the file survives the
// file not existing yet.
func (r *Relay) Start(ctx context.Context, deliver DeliverFunc) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.dir); err != nil {
		_ = w.Close()
		return err
	}
	r.watcher = w

	go func() {
		defer r.closeWatcher()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != r.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				raw, err := os.ReadFile(r.path)
				if err != nil || len(raw) == 0 {
					continue
				}
				deliver(raw)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
				// Watch errors are not actionable here; the channel just
				// degrades until the next successful event.
			}
		}
	}()
	return nil
}

// Send rewrites the mailbox file. A full disk or permission error reports
// false and is otherwise ignored.
func (r *Relay) Send(raw []byte) bool {
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return false
	}
	return true
}

// closeWatcher shuts down the underlying fsnotify.Watcher exactly once.
func (r *Relay) closeWatcher() {
	r.closeOnce.Do(func() {
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
	})
}

func (r *Relay) Close() error {
	r.closeWatcher()
	return nil
}
