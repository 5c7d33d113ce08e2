// Package scene holds the shared visual parameter tree and the logic that
// applies an incoming parameter snapshot onto a live scene. Applying is not
// a blind replace: individual fields carry side effects (theme re-init,
// lensflare create/destroy, a batched particle rebuild), and nested
// sub-objects merge field-by-field so omitted fields survive on the receiver.
package scene

// Params is the serializable subset of scene state that stays synchronized
// between control and receiver. Control owns it authoritatively; a receiver
// only ever holds a locally-applied copy.
type Params struct {
	Theme           string  `json:"theme"`
	BackgroundHDR   bool    `json:"backgroundHdr"`
	Lensflare       bool    `json:"lensflare"`
	FogDensity      float64 `json:"fogDensity"`
	RotationSpeed   float64 `json:"rotationSpeed"`
	ParticleDensity float64 `json:"particleDensity"`
	PixelRatioCap   float64 `json:"pixelRatioCap"`

	Bloom       Bloom       `json:"bloom"`
	OuterShell  OuterShell  `json:"outerShell"`
	MapLayer    MapLayer    `json:"map"`
	Explosion   Explosion   `json:"explosion"`
	Performance Performance `json:"performance"`
}

// Bloom configures the post-processing bloom pass.
type Bloom struct {
	Enabled   bool    `json:"enabled"`
	Strength  float64 `json:"strength"`
	Radius    float64 `json:"radius"`
	Threshold float64 `json:"threshold"`
}

// OuterShell configures the outer particle shell. Changing Enabled or
// DensityScale requires rebuilding the particle system, not just assignment.
type OuterShell struct {
	Enabled      bool    `json:"enabled"`
	DensityScale float64 `json:"densityScale"`
	Seed         int     `json:"seed"`
}

// MapLayer configures the projection-mapping overlay.
type MapLayer struct {
	Enabled bool     `json:"enabled"`
	Opacity float64  `json:"opacity"`
	Palette []string `json:"palette"`
}

// Explosion configures the one-shot explosion effect.
type Explosion struct {
	Enabled   bool    `json:"enabled"`
	Intensity float64 `json:"intensity"`
	DecayMs   int     `json:"decayMs"`
}

// Performance holds the resolution/quality knobs.
type Performance struct {
	Antialias      bool `json:"antialias"`
	HalfResolution bool `json:"halfResolution"`
}

// DefaultParams returns the parameter tree a fresh installation starts with.
func DefaultParams() Params {
	return Params{
		Theme:           "nebula",
		BackgroundHDR:   true,
		Lensflare:       true,
		FogDensity:      0.012,
		RotationSpeed:   0.25,
		ParticleDensity: 1.0,
		PixelRatioCap:   2.0,
		Bloom: Bloom{
			Enabled:   true,
			Strength:  0.85,
			Radius:    0.4,
			Threshold: 0.6,
		},
		OuterShell: OuterShell{
			Enabled:      true,
			DensityScale: 1.0,
			Seed:         7,
		},
		MapLayer: MapLayer{
			Enabled: false,
			Opacity: 0.8,
			Palette: []string{"#10131a", "#3a6ea5", "#f2c14e"},
		},
		Explosion: Explosion{
			Enabled:   true,
			Intensity: 1.0,
			DecayMs:   900,
		},
		Performance: Performance{
			Antialias:      true,
			HalfResolution: false,
		},
	}
}

// Clone returns a deep, allocation-fresh copy of p. Snapshots sent over the
// wire or compared against previous sends must never alias live scene state.
func (p Params) Clone() Params {
	out := p
	if p.MapLayer.Palette != nil {
		out.MapLayer.Palette = make([]string, len(p.MapLayer.Palette))
		copy(out.MapLayer.Palette, p.MapLayer.Palette)
	}
	return out
}
