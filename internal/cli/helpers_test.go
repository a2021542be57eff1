package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// greenhouseTrees fires boot before daytime: once daytime is entered the
// root's later children are no longer evaluated.
const greenhouseTrees = `
package trees

tree: climate: children: [
	{task: "boot", when: {always: {edge: true}}, every: "1h", do: [{set: {key: "booted", value: true}}]},
	{
		context: "daytime"
		when: {state: {key: "phase", equals: "day"}}
		on_exit: {do: [{pin: {id: 17, state: false}}]}
		children: [
			{task: "fan_on", when: {always: {edge: true}}, do: [{pin: {id: 17, state: true}}, {log: "fan on", level: "debug"}]},
		]
	},
]

output_pins: [17]
`

// writeTrees writes src as trees.cue in a fresh directory and returns it.
func writeTrees(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "trees")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trees.cue"), []byte(src), 0644))
	return dir
}

// syncBuffer is a bytes.Buffer safe for the log sink's consumer goroutine
// and the command writing at the same time.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// execute runs cmd with args and returns its combined output.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &syncBuffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
