// Package main is the entry point for the arbiter binary. It serves the
// agent execution pipeline over HTTP, runs one-shot executions from the
// command line, and prints the health descriptor.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
