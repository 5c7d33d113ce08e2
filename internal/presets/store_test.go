package presets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-foundry/stagelink/internal/scene"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "presets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := scene.DefaultParams()
	p.Theme = "ember"
	p.OuterShell.DensityScale = 1.8
	require.NoError(t, s.Save("warmup", p))

	got, err := s.Load("warmup")
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	p := scene.DefaultParams()
	require.NoError(t, s.Save("a", p))
	p.Theme = "glacier"
	require.NoError(t, s.Save("a", p))

	got, err := s.Load("a")
	require.NoError(t, err)
	require.Equal(t, "glacier", got.Theme)
}

func TestSaveRejectsEmptyName(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.Save("", scene.DefaultParams()))
}

func TestListSorted(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"zed", "alpha", "mid"} {
		require.NoError(t, s.Save(name, scene.DefaultParams()))
	}
	names, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mid", "zed"}, names)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Save("gone", scene.DefaultParams()))
	require.NoError(t, s.Delete("gone"))
	_, err := s.Load("gone")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing preset is not an error.
	require.NoError(t, s.Delete("never-existed"))
}
