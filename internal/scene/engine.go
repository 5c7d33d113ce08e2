package scene

import (
	"log"
	"sync"
)

// Engine is the narrow surface the sync coordinator needs from the rendering
// layer. The real renderer lives outside this repository; MemoryEngine
// implements the same contract for headless operation and tests.
type Engine interface {
	// Params returns a copy of the live parameter tree.
	Params() Params
	// SetParams assigns the merged parameter tree. Side-effect routines are
	// invoked separately by the caller.
	SetParams(Params)
	// ApplyTheme re-initializes render resources tied to the theme and the
	// background HDR toggle.
	ApplyTheme(theme string, backgroundHDR bool)
	// SetLensflare creates or destroys the lensflare object.
	SetLensflare(enabled bool)
	// SetPixelRatioCap validates and applies the render pixel-ratio cap.
	SetPixelRatioCap(cap float64)
	// RebuildParticles tears down and recreates the particle systems.
	RebuildParticles()
	// SetFullscreen drives the projector fullscreen state.
	SetFullscreen(on bool)
	// Fullscreen reports the current fullscreen state.
	Fullscreen() bool
	// TriggerEffect fires a named one-shot visual and reports whether the
	// name was recognized.
	TriggerEffect(name string) bool
}

// MemoryEngine is a headless Engine. It keeps the parameter tree, counts
// side-effect invocations, and optionally logs them, which is enough to run
// the daemon without a renderer and to assert on behavior in tests.
type MemoryEngine struct {
	mu         sync.Mutex
	params     Params
	fullscreen bool
	log        *log.Logger

	rebuilds     int
	themeApplies int
	effects      []string
}

// NewMemoryEngine returns an engine seeded with the default parameters.
// logger may be nil.
func NewMemoryEngine(logger *log.Logger) *MemoryEngine {
	return &MemoryEngine{params: DefaultParams(), log: logger}
}

func (m *MemoryEngine) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params.Clone()
}

func (m *MemoryEngine) SetParams(p Params) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = p.Clone()
}

func (m *MemoryEngine) ApplyTheme(theme string, backgroundHDR bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.themeApplies++
	if m.log != nil {
		m.log.Printf("scene: theme applied: %s (hdr=%v)", theme, backgroundHDR)
	}
}

func (m *MemoryEngine) SetLensflare(enabled bool) {
	if m.log != nil {
		m.log.Printf("scene: lensflare enabled=%v", enabled)
	}
}

// SetPixelRatioCap clamps the cap to the [0.5, 4.0] range the renderer
// tolerates before storing it.
func (m *MemoryEngine) SetPixelRatioCap(cap float64) {
	if cap < 0.5 {
		cap = 0.5
	}
	if cap > 4.0 {
		cap = 4.0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.PixelRatioCap = cap
}

func (m *MemoryEngine) RebuildParticles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebuilds++
	if m.log != nil {
		m.log.Printf("scene: particle systems rebuilt")
	}
}

func (m *MemoryEngine) SetFullscreen(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullscreen = on
}

func (m *MemoryEngine) Fullscreen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreen
}

// knownEffects is the fixed set of one-shot visuals a receiver can fire.
var knownEffects = map[string]bool{
	"explosion":   true,
	"strobe":      true,
	"cameraSweep": true,
}

func (m *MemoryEngine) TriggerEffect(name string) bool {
	if !knownEffects[name] {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.effects = append(m.effects, name)
	if m.log != nil {
		m.log.Printf("scene: effect fired: %s", name)
	}
	return true
}

// Rebuilds reports how many particle rebuilds have run.
func (m *MemoryEngine) Rebuilds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuilds
}

// ThemeApplies reports how many full theme re-applications have run.
func (m *MemoryEngine) ThemeApplies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.themeApplies
}

// Effects returns the one-shot effects fired so far, in order.
func (m *MemoryEngine) Effects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.effects))
	copy(out, m.effects)
	return out
}
