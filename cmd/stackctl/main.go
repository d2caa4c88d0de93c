// Command stackctl is the CLI companion to stackd. It validates and renders
// stack documents locally and drives the stackd API for everything else.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
