// Command taskdispatch runs declarative task trees against GPIO pins and
// application state.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/taskdispatch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
