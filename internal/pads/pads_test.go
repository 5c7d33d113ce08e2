package pads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEngageReleaseEnvelope(t *testing.T) {
	f := NewFollower()
	t0 := time.Unix(1000, 0)

	require.Zero(t, f.Level("q", t0))

	f.Handle(Event{Key: "q", Action: "engage", At: t0})
	require.Equal(t, 1.0, f.Level("q", t0.Add(time.Second)))

	// At 120 BPM a 1.5-beat bounce is 750 ms, starting at the bounce
	// amplitude and decaying linearly to zero.
	rel := t0.Add(2 * time.Second)
	f.Handle(Event{Key: "q", Action: "release", At: rel})
	require.InDelta(t, 0.6, f.Level("q", rel), 1e-9)
	require.InDelta(t, 0.3, f.Level("q", rel.Add(375*time.Millisecond)), 1e-9)
	require.Zero(t, f.Level("q", rel.Add(800*time.Millisecond)))
}

func TestBounceWindowScalesWithTempo(t *testing.T) {
	f := NewFollower()
	f.SetBPM(180)
	t0 := time.Unix(1000, 0)

	// 1.5 beats at 180 BPM is 500 ms.
	f.Handle(Event{Key: "w", Action: "engage", At: t0})
	f.Handle(Event{Key: "w", Action: "release", At: t0})
	require.Zero(t, f.Level("w", t0.Add(501*time.Millisecond)))
	require.Positive(t, f.Level("w", t0.Add(499*time.Millisecond)))
}

func TestSetBPMBounds(t *testing.T) {
	f := NewFollower()
	f.SetBPM(500)
	f.SetBPM(10)
	t0 := time.Unix(1000, 0)

	// Garbage tempos are ignored, so the fallback 120 BPM window applies.
	f.Handle(Event{Key: "e", Action: "engage", At: t0})
	f.Handle(Event{Key: "e", Action: "release", At: t0})
	require.Positive(t, f.Level("e", t0.Add(700*time.Millisecond)))
	require.Zero(t, f.Level("e", t0.Add(760*time.Millisecond)))
}

func TestReleaseWithoutEngageIgnored(t *testing.T) {
	f := NewFollower()
	t0 := time.Unix(1000, 0)

	f.Handle(Event{Key: "r", Action: "release", At: t0})
	require.Zero(t, f.Level("r", t0))
}

func TestShotSpike(t *testing.T) {
	f := NewFollower()
	t0 := time.Unix(1000, 0)

	f.Handle(Event{Key: "t", Action: "shot", At: t0})
	require.Equal(t, 1.0, f.Level("t", t0))
	require.InDelta(t, 0.5, f.Level("t", t0.Add(150*time.Millisecond)), 1e-9)
	require.Zero(t, f.Level("t", t0.Add(300*time.Millisecond)))
}

func TestShotOverridesWeakerBounce(t *testing.T) {
	f := NewFollower()
	t0 := time.Unix(1000, 0)

	f.Handle(Event{Key: "y", Action: "engage", At: t0})
	f.Handle(Event{Key: "y", Action: "release", At: t0})
	f.Handle(Event{Key: "y", Action: "shot", At: t0})

	// Shot spike (1.0) beats the release bounce (0.6) right after both fire.
	require.Equal(t, 1.0, f.Level("y", t0))
}
