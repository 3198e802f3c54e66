package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRendererType(t *testing.T) {
	tests := []struct {
		in   string
		want RendererType
	}{
		{"", Headless},
		{"Headless", Headless},
		{" vk ", Vulkan},
		{"webgpu", WebGPU},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRendererType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRendererType("metal")
	assert.ErrorIs(t, err, ErrUnsupportedRenderer)
	assert.Equal(t, "wgpu", WebGPU.String())
}
