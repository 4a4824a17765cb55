// Command fastgemini is the CLI entry point: interactive chat against the
// agentic loop plus cache management and config schema export.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
