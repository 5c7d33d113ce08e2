// Package pads implements the receiver-side performance-pad follower. The
// sync layer forwards pad events verbatim; this package owns their meaning:
// an engage/release envelope per pad key, with a short release bounce whose
// duration is measured in beats of the current tempo.
package pads

import (
	"math"
	"sync"
	"time"
)

// Event is one pad action as it arrives off the wire.
type Event struct {
	Key    string
	Action string // "engage", "release", or "shot"
	At     time.Time
}

// fallbackBPM is used until the audio-feature stream supplies a tempo.
const fallbackBPM = 120

// pad tracks one key's envelope state.
type pad struct {
	engaged      bool
	shotAt       time.Time
	releasedAt   time.Time
	bounceWindow time.Duration
}

// Follower turns pad events into per-key intensity levels the renderer can
// sample every frame.
type Follower struct {
	mu   sync.Mutex
	pads map[string]*pad
	bpm  float64

	// Release bounce shape, shared across pads.
	ReleaseBounceBeats float64
	ReleaseBounceAmp   float64
	ShotDecay          time.Duration
}

// NewFollower returns a follower with the stock envelope shape.
func NewFollower() *Follower {
	return &Follower{
		pads:               make(map[string]*pad),
		ReleaseBounceBeats: 1.5,
		ReleaseBounceAmp:   0.6,
		ShotDecay:          300 * time.Millisecond,
	}
}

// SetBPM updates the tempo used to size the release bounce. Values out of
// plausible range are ignored so a garbage frame cannot collapse envelopes.
func (f *Follower) SetBPM(bpm float64) {
	if bpm < 40 || bpm > 260 {
		return
	}
	f.mu.Lock()
	f.bpm = bpm
	f.mu.Unlock()
}

// Handle applies one pad event. The release bounce window is derived from
// ReleaseBounceBeats and the current tempo at release time.
func (f *Follower) Handle(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.pads[ev.Key]
	if p == nil {
		p = &pad{}
		f.pads[ev.Key] = p
	}

	switch ev.Action {
	case "engage":
		p.engaged = true
		p.releasedAt = time.Time{}
	case "release":
		if !p.engaged {
			return
		}
		p.engaged = false
		p.releasedAt = ev.At
		p.bounceWindow = f.bounceWindowLocked()
	case "shot":
		p.shotAt = ev.At
	}
}

// bounceWindowLocked converts the beat-based bounce length into wall time.
func (f *Follower) bounceWindowLocked() time.Duration {
	bpm := f.bpm
	if bpm == 0 {
		bpm = fallbackBPM
	}
	beats := f.ReleaseBounceBeats
	if beats <= 0 {
		return 0
	}
	return time.Duration(beats * 60 / bpm * float64(time.Second))
}

// Level samples the envelope for key at now: 1.0 while engaged, a decaying
// bounce after release, a fast spike after a shot, otherwise 0.
func (f *Follower) Level(key string, now time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.pads[key]
	if p == nil {
		return 0
	}

	level := 0.0
	if p.engaged {
		level = 1.0
	} else if !p.releasedAt.IsZero() && p.bounceWindow > 0 {
		elapsed := now.Sub(p.releasedAt)
		if elapsed < p.bounceWindow {
			frac := 1 - float64(elapsed)/float64(p.bounceWindow)
			level = f.ReleaseBounceAmp * frac
		}
	}

	if !p.shotAt.IsZero() {
		elapsed := now.Sub(p.shotAt)
		if elapsed < f.ShotDecay {
			shot := 1 - float64(elapsed)/float64(f.ShotDecay)
			level = math.Max(level, shot)
		}
	}

	return level
}
