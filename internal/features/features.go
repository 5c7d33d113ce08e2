// Package features defines the audio-feature frame exchanged between control
// and receiver and the sanitizer that bounds what goes on the wire. Frames
// are transient (~30 Hz) and never persisted; a receiver discards frames
// that are not refreshed within the staleness window so a dropped connection
// never leaves frozen audio-reactive motion on screen.
package features

import "time"

// StaleAfter is how long a received frame stays usable. Chosen well above
// the 33 ms send cadence but short enough that a vanished control stops
// driving the visuals within about a second.
const StaleAfter = 1400 * time.Millisecond

// maxSpectrumBins bounds the spectrum slice so a single frame can never
// balloon the payload.
const maxSpectrumBins = 64

// Frame is the sanitized per-tick audio feature set. Only these fields ever
// leave the process; the host's internal feature object carries transient
// analysis state that must not go on the wire.
type Frame struct {
	Level    float64   `json:"level"`
	Bass     float64   `json:"bass"`
	Mid      float64   `json:"mid"`
	Treble   float64   `json:"treble"`
	Beat     bool      `json:"beat"`
	BPM      float64   `json:"bpm"`
	Spectrum []float64 `json:"spectrum,omitempty"`
}

// Sanitize copies the allowlisted fields out of a raw feature object. Fields
// with unexpected types are dropped, never coerced.
func Sanitize(raw map[string]any) Frame {
	var f Frame
	f.Level = num(raw, "level")
	f.Bass = num(raw, "bass")
	f.Mid = num(raw, "mid")
	f.Treble = num(raw, "treble")
	f.BPM = num(raw, "bpm")
	if b, ok := raw["beat"].(bool); ok {
		f.Beat = b
	}
	if spec, ok := raw["spectrum"].([]float64); ok {
		n := len(spec)
		if n > maxSpectrumBins {
			n = maxSpectrumBins
		}
		f.Spectrum = make([]float64, n)
		copy(f.Spectrum, spec[:n])
	}
	return f
}

func num(raw map[string]any, key string) float64 {
	if v, ok := raw[key].(float64); ok {
		return v
	}
	return 0
}

// IsStale reports whether a frame received at receivedAt should be discarded.
func IsStale(receivedAt, now time.Time) bool {
	if receivedAt.IsZero() {
		return true
	}
	return now.Sub(receivedAt) > StaleAfter
}
