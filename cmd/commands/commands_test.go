package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.Writer = &out
	err := cmd.Run(context.Background(), append([]string{"interaction-sim"}, args...))
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	out, err := runCLI(t, "run", "--gestures", "2", "--tasks", "2", "--hold", "5ms", "--gap", "5ms", "--fail-every", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "gesture-start")
	assert.Contains(t, out, "interactionComplete")
	assert.Contains(t, out, "tasks=4 failed=2 violations=0")
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("manager:\n  name: from-file\n"), 0o644))

	out, err := runCLI(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "name: from-file")
	assert.Contains(t, out, "poll_interval: 1s")
}

func TestConfigCommand_BadFile(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
