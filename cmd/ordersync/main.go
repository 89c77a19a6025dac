// Command ordersync keeps a local copy of the order service's orders in
// sync and lets an operator advance their status.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ordersync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
