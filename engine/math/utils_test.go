package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 1, 3))
	assert.Equal(t, 1, Clamp(-2, 1, 3))
	assert.Equal(t, 2.5, Clamp(2.5, 1.0, 3.0))
}

func TestLCM(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		want uint32
	}{
		{"coprime", 2, 3, 6},
		{"shared factor", 4, 6, 12},
		{"same", 3, 3, 3},
		{"one", 1, 5, 5},
		{"zero left", 0, 7, 7},
		{"zero right", 7, 0, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LCM(tt.a, tt.b))
		})
	}
}

func TestGCD(t *testing.T) {
	assert.Equal(t, uint(4), GCD(uint(8), uint(12)))
	assert.Equal(t, uint(1), GCD(uint(7), uint(3)))
	assert.Equal(t, uint(0), GCD(uint(0), uint(0)))
}

func TestLCMOf(t *testing.T) {
	assert.Equal(t, uint32(1), LCMOf[uint32]())
	assert.Equal(t, uint32(6), LCMOf[uint32](2, 3, 1))
	assert.Equal(t, uint64(60), LCMOf[uint64](3, 4, 5))
}
