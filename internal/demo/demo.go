// Package demo exercises the full sync pipeline with no audio hardware or
// renderer: it synthesizes a plausible 30 Hz audio-feature stream and
// periodically perturbs scene parameters so snapshots, features, and the
// event stream all carry live traffic an operator can watch.
package demo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/lumen-foundry/stagelink/internal/scene"
	stagesync "github.com/lumen-foundry/stagelink/internal/sync"
	"github.com/lumen-foundry/stagelink/internal/ws"
)

// themes cycled by the parameter mutator.
var themes = []string{"nebula", "ember", "glacier", "monolith"}

// Runner drives the demo feature stream and parameter mutations.
type Runner struct {
	Engine scene.Engine
	Coord  *stagesync.Coordinator
	Hub    *ws.Hub

	// MutateInterval is how often one scene parameter is perturbed.
	MutateInterval time.Duration

	themeIndex int
	beatPhase  float64
}

// New creates a demo runner with a sensible default mutation interval.
func New(engine scene.Engine, coord *stagesync.Coordinator, hub *ws.Hub) *Runner {
	return &Runner{
		Engine:         engine,
		Coord:          coord,
		Hub:            hub,
		MutateInterval: 10 * time.Second,
	}
}

// Run produces features at ~30 Hz and mutations on MutateInterval until ctx
// is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.broadcastLog("demo mode active, synthesizing audio features")

	features := time.NewTicker(33 * time.Millisecond)
	defer features.Stop()

	mutate := time.NewTicker(r.MutateInterval)
	defer mutate.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-features.C:
			r.Coord.HandleLocalFeatures(r.synthFeatures(now.Sub(start)), now)
		case <-mutate.C:
			r.mutate()
		}
	}
}

// synthFeatures generates one frame: slow sines for the band levels and a
// 120 BPM beat pulse, the same shape a live analysis chain would produce.
func (r *Runner) synthFeatures(t time.Duration) map[string]any {
	sec := t.Seconds()
	r.beatPhase = math.Mod(sec*2, 1) // 120 BPM

	return map[string]any{
		"level":  0.5 + 0.4*math.Sin(sec*1.3),
		"bass":   0.5 + 0.45*math.Sin(sec*0.7),
		"mid":    0.4 + 0.3*math.Sin(sec*1.9+1),
		"treble": 0.3 + 0.25*math.Sin(sec*3.1+2),
		"beat":   r.beatPhase < 0.08,
		"bpm":    120.0,
	}
}

// mutate perturbs one randomly chosen scene parameter so the change-driven
// snapshot stream has state transitions to carry.
func (r *Runner) mutate() {
	p := r.Engine.Params()

	var what string
	switch rand.Intn(4) {
	case 0:
		r.themeIndex = (r.themeIndex + 1) % len(themes)
		p.Theme = themes[r.themeIndex]
		what = fmt.Sprintf("theme -> %s", p.Theme)
	case 1:
		p.FogDensity = 0.005 + rand.Float64()*0.02
		what = fmt.Sprintf("fog density -> %.4f", p.FogDensity)
	case 2:
		p.Bloom.Strength = 0.5 + rand.Float64()*0.8
		what = fmt.Sprintf("bloom strength -> %.2f", p.Bloom.Strength)
	case 3:
		p.OuterShell.DensityScale = 0.5 + rand.Float64()*1.5
		what = fmt.Sprintf("outer shell density -> %.2f", p.OuterShell.DensityScale)
	}

	r.Engine.SetParams(p)
	r.broadcastLog("demo mutation: " + what)
}

func (r *Runner) broadcastLog(msg string) {
	if r.Hub == nil {
		return
	}
	r.Hub.BroadcastJSON(map[string]any{
		"type":    "log",
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"level":   "info",
		"message": msg,
	})
}
