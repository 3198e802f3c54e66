package core

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogErrorKeepsVerbs(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	t.Cleanup(func() { SetLogOutput(os.Stderr) })

	// Resource names reach the logs through errors and may hold verbs.
	err := errors.New(`resource "shadow%d" is read before it is written`)
	LogError("%s", err)
	LogWarn("%s", err)

	out := buf.String()
	assert.Contains(t, out, `resource "shadow%d" is read before it is written`)
	assert.NotContains(t, out, "%!d(MISSING)")
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, level)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
