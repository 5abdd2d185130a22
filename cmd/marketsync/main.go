// Command marketsync synchronizes marketplace orders, products and claims
// into a local SQLite store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/marketsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
