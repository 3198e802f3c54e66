package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	var out bytes.Buffer
	cfg, opts, exit, err := Parse([]string{"-frames", "10", "-dump", "graph.hcl"}, &out)
	require.NoError(t, err)
	assert.False(t, exit)
	assert.True(t, opts.Dump)
	assert.Equal(t, "graph.hcl", cfg.GraphPath)
	assert.Equal(t, uint64(10), cfg.FrameLimit)
	assert.Equal(t, "headless", cfg.Backend)
}

func TestParseFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
graph = "from_file.toml"
frame_limit = 100
watch = true
log_level = "debug"
`), 0o644))

	cfg, _, _, err := Parse([]string{"-config", path, "-frames", "5"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "from_file.toml", cfg.GraphPath)
	assert.Equal(t, uint64(5), cfg.FrameLimit)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "debug", cfg.LogLevel)

	cfg, _, _, err = Parse([]string{"-config", path, "-watch=false", "-graph", "other.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, cfg.Watch)
	assert.Equal(t, "other.hcl", cfg.GraphPath)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no graph", nil},
		{"unknown flag", []string{"-fast", "g.toml"}},
		{"bad backend", []string{"-backend", "metal", "g.toml"}},
		{"bad log level", []string{"-log-level", "verbose", "g.toml"}},
		{"missing config", []string{"-config", "does/not/exist.toml", "g.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, exit, err := Parse(tt.args, &bytes.Buffer{})
			assert.False(t, exit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParseHelp(t *testing.T) {
	var out bytes.Buffer
	cfg, _, exit, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "GRAPH_PATH")
}
