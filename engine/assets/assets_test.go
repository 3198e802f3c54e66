package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
)

const chainTOML = `
external = "swapchain"

[[pass]]
type = "graphics"
name = "a"

  [[pass.usage]]
  resource = "color"
  access = "write"
  format = "rgba8_unorm"

[[pass]]
type = "graphics"
name = "b"

  [[pass.usage]]
  resource = "color"
  access = "read"

  [[pass.usage]]
  resource = "swapchain"
  access = "write"
`

func newWatcher(t *testing.T) *GraphWatcher {
	t.Helper()
	gw, err := NewGraphWatcher(loaders.Variables{FramesInFlight: 2, SwapchainImages: 3}, 10*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, gw.Close()) })
	return gw
}

func TestGraphWatcherLoad(t *testing.T) {
	gw := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(chainTOML), 0o644))

	d, err := gw.Load(path)
	require.NoError(t, err)
	assert.Len(t, d.Passes(), 2)
	assert.Equal(t, "swapchain", d.ExternalResourceName())

	_, err = gw.Load(filepath.Join(dir, "chain.json"))
	assert.ErrorIs(t, err, ErrUnknownGraphFormat)
	assert.ErrorIs(t, gw.Watch(filepath.Join(dir, "chain.yaml")), ErrUnknownGraphFormat)
}

func TestGraphWatcherFiresOnWrite(t *testing.T) {
	core.EventSystemShutdown()
	require.True(t, core.EventSystemInitialize())
	t.Cleanup(core.EventSystemShutdown)

	changed := make(chan string, 8)
	onChanged := func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		changed <- data.Data.C[0]
		return true
	}
	require.NoError(t, core.EventRegister(core.EVENT_CODE_GRAPH_CHANGED, t, onChanged))

	gw := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(chainTOML), 0o644))
	require.NoError(t, gw.Watch(path))

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(chainTOML+"\n"), 0o644))

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	select {
	case got := <-changed:
		assert.Equal(t, abs, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}

	_, err = gw.Load(path)
	require.NoError(t, err)
	graphs := gw.Graphs()
	require.Len(t, graphs, 1)
	assert.False(t, graphs[0].LastLoaded.IsZero())

	require.NoError(t, gw.Unwatch(path))
	assert.Empty(t, gw.Graphs())
}

func TestGraphWatcherClosed(t *testing.T) {
	gw, err := NewGraphWatcher(loaders.Variables{}, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "g.hcl")
	assert.ErrorIs(t, gw.Watch(path), ErrWatcherClosed)
}
