// Package main is the entry point for the netcarve packet dissector and file carver.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/netcarve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
