package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArgsCapturesOutput(t *testing.T) {
	r := NewRunner(nil)
	res, err := r.RunArgs(context.Background(), "echo", []string{"-n", "hello"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
}

func TestRunArgsNonZeroExitIsIOError(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.RunArgs(context.Background(), "false", nil, Options{})
	assert.Error(t, err)
}

func TestRunCommandLineSplitsArgv(t *testing.T) {
	r := NewRunner(nil)
	res, err := r.RunCommandLine(context.Background(), `echo -n "a b"`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "a b", res.Stdout)
}

func TestSanitizedEnvironStripsLocale(t *testing.T) {
	env := sanitizedEnviron([]string{"LC_ALL=fr_FR.UTF-8", "LANG=fr_FR.UTF-8", "PATH=/bin"})
	assert.Contains(t, env, "PATH=/bin")
	assert.Contains(t, env, "LANG=C")
	for _, kv := range env {
		assert.NotContains(t, kv, "LC_ALL")
	}
}
