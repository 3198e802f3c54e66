package loaders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string `toml:"name"`
	Frames   uint32 `toml:"frames_in_flight"`
	LogLevel string `toml:"log_level"`
}

func TestLoadApplicationConfig(t *testing.T) {
	cfg := testConfig{Name: "default", Frames: 2, LogLevel: "info"}
	path := writeFile(t, "app.toml", "name = \"testbed\"\nframes_in_flight = 3\n")
	require.NoError(t, LoadApplicationConfig(path, &cfg))
	assert.Equal(t, testConfig{Name: "testbed", Frames: 3, LogLevel: "info"}, cfg)

	path = writeFile(t, "bad.toml", "frames = 3\n")
	assert.ErrorIs(t, LoadApplicationConfig(path, &cfg), ErrInvalidConfig)

	assert.Error(t, LoadApplicationConfig("does/not/exist.toml", &cfg))
}
