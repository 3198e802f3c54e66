package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

const graphTOML = `
external = "backbuffer"

[[pass]]
type = "world"
name = "gbuffer"

  [[pass.usage]]
  resource = "albedo"
  access = "write"
  format = "rgba8_unorm"

  [[pass.usage]]
  resource = "depth"
  access = "write"
  format = "d32_float"

[[pass]]
type = "compute"
name = "taa"

  [[pass.usage]]
  resource = "albedo"
  access = "read"

  [[pass.usage]]
  resource = "history"
  access = "read_write"
  format = "rgba16_float"
  role = "storage"
  multiplicity = 2

[[pass]]
type = "graphics"
name = "tonemap"

  [[pass.usage]]
  resource = "history"
  access = "read"

  [[pass.usage]]
  resource = "backbuffer"
  access = "write"
`

const graphHCL = `
external = "backbuffer"

pass "world" "gbuffer" {
  usage "albedo" {
    access = "write"
    format = "rgba8_unorm"
  }
  usage "depth" {
    access = "write"
    format = "d32_float"
  }
}

pass "compute" "taa" {
  usage "albedo" {
    access = "read"
  }
  usage "history" {
    access       = "read_write"
    format       = "rgba16_float"
    role         = "storage"
    multiplicity = frames_in_flight
  }
}

pass "graphics" "tonemap" {
  usage "history" {
    access = "read"
  }
  usage "backbuffer" {
    access = "write"
  }
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertTAAGraph(t *testing.T, d *rendergraph.Description) {
	t.Helper()
	assert.Equal(t, "backbuffer", d.ExternalResourceName())
	passes := d.Passes()
	require.Len(t, passes, 3)
	assert.Equal(t, "gbuffer", passes[0].Name)
	assert.Equal(t, "world", passes[0].Type)
	require.Len(t, passes[1].Usages, 2)
	assert.Equal(t, rendergraph.UsageDecl{
		Subresource:  "history",
		Access:       rendergraph.ReadWrite,
		Role:         rendergraph.RoleStorage,
		Format:       rendergraph.FormatRGBA16Float,
		Multiplicity: 2,
	}, passes[1].Usages[1])
}

func TestGraphTOMLLoader(t *testing.T) {
	d, err := GraphTOMLLoader{}.Load(writeFile(t, "graph.toml", graphTOML), Variables{})
	require.NoError(t, err)
	assertTAAGraph(t, d)
}

func TestGraphHCLLoader(t *testing.T) {
	d, err := GraphHCLLoader{}.Load(writeFile(t, "graph.hcl", graphHCL), Variables{FramesInFlight: 2, SwapchainImages: 3})
	require.NoError(t, err)
	assertTAAGraph(t, d)
}

func TestGraphFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		err     error
	}{
		{"unknown toml key", "g.toml", "externl = \"x\"\n", ErrInvalidGraphFile},
		{"bad toml", "g.toml", "[[pass]\n", ErrInvalidGraphFile},
		{"unknown variable", "g.hcl", "pass \"world\" \"a\" {\n usage \"x\" {\n access = \"write\"\n multiplicity = bogus\n }\n}\n", ErrInvalidGraphFile},
		{"bad access", "g.toml", "[[pass]]\ntype = \"world\"\nname = \"a\"\n[[pass.usage]]\nresource = \"x\"\naccess = \"sometimes\"\n", rendergraph.ErrInvalidAccess},
		{"bad format", "g.toml", "[[pass]]\ntype = \"world\"\nname = \"a\"\n[[pass.usage]]\nresource = \"x\"\naccess = \"write\"\nformat = \"rgb565\"\n", rendergraph.ErrUnknownFormat},
		{"duplicate pass", "g.toml", "[[pass]]\ntype = \"world\"\nname = \"a\"\n[[pass]]\ntype = \"ui\"\nname = \"a\"\n", rendergraph.ErrDuplicatePass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			var err error
			if filepath.Ext(path) == ".hcl" {
				_, err = GraphHCLLoader{}.Load(path, Variables{FramesInFlight: 2})
			} else {
				_, err = GraphTOMLLoader{}.Load(path, Variables{})
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMarshalGraphTOMLRoundTrip(t *testing.T) {
	d, err := GraphHCLLoader{}.Load(writeFile(t, "graph.hcl", graphHCL), Variables{FramesInFlight: 2})
	require.NoError(t, err)

	data, err := MarshalGraphTOML(d)
	require.NoError(t, err)
	gf, err := ParseGraphTOML(data)
	require.NoError(t, err)
	again, err := gf.Description()
	require.NoError(t, err)
	assert.Equal(t, d.Passes(), again.Passes())
	assert.Equal(t, d.ExternalResourceName(), again.ExternalResourceName())
}
