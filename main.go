// Package main is the entry point for the DarkRenderer distributed ray-triangle
// intersection service.
package main

import (
	"fmt"
	"os"

	"github.com/adriannosampaio/darkrenderer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
