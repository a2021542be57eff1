package gpio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim_InputFollowsSet(t *testing.T) {
	sim := NewSim()
	line, err := sim.OpenInput(4)
	require.NoError(t, err)

	v, err := line.Read()
	require.NoError(t, err)
	assert.False(t, v)

	sim.Set(4, true)
	v, err = line.Read()
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, sim.Opened(4))
}

func TestSim_OutputStartsInactive(t *testing.T) {
	sim := NewSim()
	line, err := sim.OpenOutput(17)
	require.NoError(t, err)
	assert.False(t, sim.Output(17))

	require.NoError(t, line.Write(true))
	assert.True(t, sim.Output(17))
}

func TestSim_FailOpen(t *testing.T) {
	sim := NewSim()
	sim.FailOpen(5, errors.New("busy"))

	_, err := sim.OpenInput(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")

	// Failure is one-shot.
	_, err = sim.OpenInput(5)
	assert.NoError(t, err)
}

func TestSysfs_ReadAndWrite(t *testing.T) {
	root := t.TempDir()
	// Pre-create exported pin directories so no export write is needed.
	for _, pin := range []string{"gpio4", "gpio17"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, pin), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, pin, "value"), []byte("0\n"), 0o644))
	}

	d := &Sysfs{Root: root}
	in, err := d.OpenInput(4)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "gpio4", "value"), []byte("1\n"), 0o644))
	v, err := in.Read()
	require.NoError(t, err)
	assert.True(t, v)

	out, err := d.OpenOutput(17)
	require.NoError(t, err)
	defer out.Close()
	require.NoError(t, out.Write(true))

	raw, err := os.ReadFile(filepath.Join(root, "gpio17", "value"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw[:1]))

	dir, err := os.ReadFile(filepath.Join(root, "gpio17", "direction"))
	require.NoError(t, err)
	assert.Equal(t, "high", string(dir))
}

func TestSnapshot_String(t *testing.T) {
	s := Snapshot{Current: true}
	assert.Contains(t, s.String(), "Current state: true")
}
